package ebiten_test

import (
	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/plus3/strata/ecs"
	"github.com/plus3/strata/ecs/debugui"
	debugui_ebiten "github.com/plus3/strata/ecs/debugui/ebiten"
	"github.com/plus3/strata/jobs"
)

type Position struct{ X, Y float32 }

func Example() {
	def := ecs.NewDef()
	position := ecs.RegisterComponent[Position](def)
	imguiComps := debugui.Register(def)

	world := ecs.NewWorld(def)
	defer world.Close()
	imguiComps.Attach(world)

	// Spawn entities with ImGui render functions
	e := world.CreateEntity()
	position.Add(world, e, Position{X: 10, Y: 20})
	imguiComps.Item.Add(world, world.CreateEntity(), debugui.ImguiItem{
		Render: func() {
			imgui.Begin("Debug Window")
			imgui.Text("Hello from ECS!")
			imgui.End()
		},
	})
	world.Flush()

	exec := jobs.NewExecutor()
	defer exec.Close()
	runner := ecs.NewRunner(world, exec)

	game := debugui_ebiten.NewGame("ECS ImGui Example", 1280, 720, runner, imguiComps.Queue)
	game.Overlay = debugui.NewInspector(world, runner).Render

	// Run the game
	if err := ebiten.RunGame(game); err != nil {
		panic(err)
	}
}
