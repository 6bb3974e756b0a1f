package hostcmd

import (
	"github.com/emberlang/ember/lang/asm"
	"github.com/emberlang/ember/lang/bytecode"
	"github.com/emberlang/ember/lang/proto"
)

// DemoModuleName is the module name the "demo" subcommand resolves through
// vm.Modules, standing in for a module that would ordinarily arrive from a
// compiler front end.
const DemoModuleName = "demo"

// buildDemoChunk hand-assembles a tiny module exporting one function,
// greet(name), which prints name through the GETFIELD-on-an-empty-map
// fallback to vm.Globals and returns it unchanged. It
// exists to give the embedding demo something real to Call into without a
// compiler front end.
func buildDemoChunk() *proto.Chunk {
	greet := asm.New("greet").Params(1, false).MaxStack(4)
	kPrint := greet.KString("print")
	greet.ABC(bytecode.OpNewMap, 1, 0, 0, false, 1)
	greet.ABC(bytecode.OpGetField, 2, 1, uint8(kPrint), false, 1)
	greet.ABC(bytecode.OpMove, 3, 0, 0, false, 1)
	greet.ABC(bytecode.OpCall, 2, 2, 1, false, 1)
	greet.ABC(bytecode.OpReturn, 0, 2, 0, false, 1)

	root := asm.New("demo").MaxStack(1)
	kGreetName := root.KString("greet")
	nested := root.Nested(greet.Build())
	root.ABx(bytecode.OpClosure, 0, nested, 1)
	root.ABC(bytecode.OpExport, 0, uint8(kGreetName), 0, false, 1)
	root.ABC(bytecode.OpReturn, 0, 1, 0, false, 1)

	return asm.Chunk(root.Build(), "greet")
}
