package object

// MagicSlot indexes the 23-slot direct-indexed magic-method vtable carried
// by every Class. The order matches
// the canonical listing in the embedding ABI section so that a host and the
// VM agree on slot numbers without needing a name lookup at the hot path.
type MagicSlot int

const (
	MagicInit MagicSlot = iota
	MagicGC
	MagicGet
	MagicSet
	MagicGetItem
	MagicSetItem
	MagicAdd
	MagicSub
	MagicMul
	MagicDiv
	MagicMod
	MagicPow
	MagicUnm
	MagicIdiv
	MagicEq
	MagicLt
	MagicLe
	MagicBand
	MagicBor
	MagicBxor
	MagicBnot
	MagicShl
	MagicShr

	numMagicSlots
)

var magicNames = [numMagicSlots]string{
	MagicInit:    "__init",
	MagicGC:      "__gc",
	MagicGet:     "__get",
	MagicSet:     "__set",
	MagicGetItem: "__getitem",
	MagicSetItem: "__setitem",
	MagicAdd:     "__add",
	MagicSub:     "__sub",
	MagicMul:     "__mul",
	MagicDiv:     "__div",
	MagicMod:     "__mod",
	MagicPow:     "__pow",
	MagicUnm:     "__unm",
	MagicIdiv:    "__idiv",
	MagicEq:      "__eq",
	MagicLt:      "__lt",
	MagicLe:      "__le",
	MagicBand:    "__band",
	MagicBor:     "__bor",
	MagicBxor:    "__bxor",
	MagicBnot:    "__bnot",
	MagicShl:     "__shl",
	MagicShr:     "__shr",
}

// Name returns the canonical "__<mnemonic>" name for the slot.
func (s MagicSlot) Name() string { return magicNames[s] }

// MagicSlotByName returns the slot for name and true, or (0, false) if name
// is not one of the 23 recognised magic methods.
func MagicSlotByName(name string) (MagicSlot, bool) {
	for i, n := range magicNames {
		if n == name {
			return MagicSlot(i), true
		}
	}
	return 0, false
}
