// Package ebiten runs an ecs.Runner inside an Ebiten game loop with a Dear ImGui overlay.
package ebiten

import (
	ebitenbackend "github.com/AllenDang/cimgui-go/backend/ebiten-backend"
	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/plus3/strata/ecs"
	"github.com/plus3/strata/ecs/debugui"
)

// ImguiBackend wraps the Ebiten-specific Dear ImGui backend implementation.
type ImguiBackend struct {
	*ebitenbackend.EbitenBackend
}

// Game implements ebiten.Game. Each Update runs one runner tick and then draws the render
// functions queued by debugui.ImguiSystem, all on Ebiten's update goroutine.
type Game struct {
	Backend ImguiBackend
	Runner  *ecs.Runner
	Queue   *debugui.RenderQueue

	// DrawWorld draws game content below the ImGui overlay. Optional.
	DrawWorld func(screen *ebiten.Image)
	// Overlay renders additional ImGui windows after the queued items. Optional.
	Overlay func()

	timer *debugui.FrameTimer
}

var _ ebiten.Game = (*Game)(nil)

// NewGame creates a window through the backend and returns a Game ready for ebiten.RunGame.
func NewGame(title string, width, height int, runner *ecs.Runner, queue *debugui.RenderQueue) *Game {
	backend := ebitenbackend.NewEbitenBackend()
	backend.CreateWindow(title, width, height)
	imgui.CurrentIO().SetIniFilename("")

	return &Game{
		Backend: ImguiBackend{EbitenBackend: backend},
		Runner:  runner,
		Queue:   queue,
		timer:   debugui.NewFrameTimer(),
	}
}

func (g *Game) Update() error {
	g.Backend.BeginFrame()

	io := imgui.CurrentIO()
	g.Queue.SetInput(debugui.ImguiInputState{
		WantCaptureMouse:    io.WantCaptureMouse(),
		WantCaptureKeyboard: io.WantCaptureKeyboard(),
	})

	g.Runner.RunSync(g.timer.DeltaTime())
	g.Queue.Render()
	if g.Overlay != nil {
		g.Overlay()
	}

	g.Backend.EndFrame()
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.DrawWorld != nil {
		g.DrawWorld(screen)
	}
	g.Backend.Draw(screen)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.Backend.Layout(outsideWidth, outsideHeight)
	return outsideWidth, outsideHeight
}
