package debugui

import (
	"fmt"
	"strings"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/plus3/strata/ecs"
)

// ViewInfo summarizes one registered view.
type ViewInfo struct {
	ID          ecs.ViewId
	Name        string
	Components  int
	Archetypes  int
	EntityCount int
	ChunkCount  int
}

// QueryMatch is an archetype matched by an ad-hoc component selection.
type QueryMatch struct {
	ID          ecs.ArchetypeId
	Components  []string
	EntityCount int
}

// ViewDebugger lists the registered views and evaluates ad-hoc component queries.
type ViewDebugger struct {
	selected ecs.CompMask
	excluded ecs.CompMask
}

func NewViewDebugger() *ViewDebugger {
	return &ViewDebugger{}
}

func (vd *ViewDebugger) Render(w *ecs.World) {
	if !imgui.BeginV("View Debugger", nil, imgui.WindowFlagsNone) {
		imgui.End()
		return
	}
	defer imgui.End()

	if imgui.BeginTabBar("ViewDebuggerTabs") {
		if imgui.BeginTabItem("Views") {
			vd.renderViews(w)
			imgui.EndTabItem()
		}
		if imgui.BeginTabItem("Query") {
			vd.renderQuery(w)
			imgui.EndTabItem()
		}
		imgui.EndTabBar()
	}
}

func (vd *ViewDebugger) renderViews(w *ecs.World) {
	const tableFlags = imgui.TableFlagsBorders | imgui.TableFlagsRowBg
	if !imgui.BeginTableV("ViewTable", 5, tableFlags, imgui.NewVec2(0, 0), 0) {
		return
	}
	imgui.TableSetupColumn("View")
	imgui.TableSetupColumn("Components")
	imgui.TableSetupColumn("Archetypes")
	imgui.TableSetupColumn("Entities")
	imgui.TableSetupColumn("Chunks")
	imgui.TableHeadersRow()

	for _, info := range buildViewInfos(w) {
		imgui.TableNextRow()
		imgui.TableSetColumnIndex(0)
		imgui.Text(info.Name)
		imgui.TableSetColumnIndex(1)
		imgui.Text(fmt.Sprintf("%d", info.Components))
		imgui.TableSetColumnIndex(2)
		imgui.Text(fmt.Sprintf("%d", info.Archetypes))
		imgui.TableSetColumnIndex(3)
		imgui.Text(fmt.Sprintf("%d", info.EntityCount))
		imgui.TableSetColumnIndex(4)
		imgui.Text(fmt.Sprintf("%d", info.ChunkCount))
	}
	imgui.EndTable()
}

func (vd *ViewDebugger) renderQuery(w *ecs.World) {
	def := w.Def()

	if imgui.Button("Clear All") {
		vd.selected = ecs.CompMask{}
		vd.excluded = ecs.CompMask{}
	}

	imgui.Text("With:")
	for c := range def.CompCount() {
		id := ecs.CompId(c)
		selected := vd.selected.Has(id)
		if imgui.Checkbox(fmt.Sprintf("%s##with", def.CompName(id)), &selected) {
			toggle(&vd.selected, id, selected)
		}
	}
	imgui.Separator()
	imgui.Text("Without:")
	for c := range def.CompCount() {
		id := ecs.CompId(c)
		excluded := vd.excluded.Has(id)
		if imgui.Checkbox(fmt.Sprintf("%s##without", def.CompName(id)), &excluded) {
			toggle(&vd.excluded, id, excluded)
		}
	}
	imgui.Separator()

	if vd.selected.IsEmpty() {
		imgui.Text("No component types selected")
		return
	}

	matches := matchArchetypes(w, vd.selected, vd.excluded)
	total := 0
	for _, m := range matches {
		total += m.EntityCount
	}
	imgui.Text(fmt.Sprintf("Matching Archetypes: %d", len(matches)))
	imgui.Text(fmt.Sprintf("Matching Entities: %d", total))

	const tableFlags = imgui.TableFlagsBorders | imgui.TableFlagsRowBg
	if imgui.BeginTableV("QueryArchTable", 3, tableFlags, imgui.NewVec2(0, 0), 0) {
		imgui.TableSetupColumn("Archetype")
		imgui.TableSetupColumn("All Components")
		imgui.TableSetupColumn("Entities")
		imgui.TableHeadersRow()

		for _, m := range matches {
			imgui.TableNextRow()
			imgui.TableSetColumnIndex(0)
			imgui.Text(fmt.Sprintf("%d", m.ID))
			imgui.TableSetColumnIndex(1)
			imgui.Text(strings.Join(m.Components, ", "))
			imgui.TableSetColumnIndex(2)
			imgui.Text(fmt.Sprintf("%d", m.EntityCount))
		}
		imgui.EndTable()
	}
}

func toggle(m *ecs.CompMask, id ecs.CompId, on bool) {
	if on {
		m.Set(id)
	} else {
		m.Clear(id)
	}
}

func buildViewInfos(w *ecs.World) []ViewInfo {
	def := w.Def()
	infos := make([]ViewInfo, def.ViewCount())
	for i := range infos {
		v := w.View(ecs.ViewId(i))
		infos[i] = ViewInfo{
			ID:          v.Id(),
			Name:        v.Name(),
			Components:  v.CompCount(),
			Archetypes:  v.ArchetypeCount(),
			EntityCount: v.EntityCount(),
			ChunkCount:  v.ChunkCount(),
		}
	}
	return infos
}

// matchArchetypes returns the archetypes holding every component of with and none of without.
func matchArchetypes(w *ecs.World, with, without ecs.CompMask) []QueryMatch {
	var matches []QueryMatch
	for _, a := range w.Archetypes() {
		mask := a.Mask()
		if !mask.ContainsAll(with) || mask.Overlaps(without) {
			continue
		}
		matches = append(matches, QueryMatch{
			ID:          a.Id(),
			Components:  compNames(w.Def(), a.Comps()),
			EntityCount: a.EntityCount(),
		})
	}
	return matches
}
