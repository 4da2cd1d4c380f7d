package debugui

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/plus3/strata/ecs"
)

// Archetype viewer table columns.
const (
	archColumnId = iota
	archColumnComps
	archColumnEntities
	archColumnChunks
	archColumnPerChunk
)

type ArchetypeInfo struct {
	ID               ecs.ArchetypeId
	ComponentTypes   []string
	EntityCount      int
	ChunkCount       int
	EntitiesPerChunk int
}

// ArchetypeViewer lists every archetype with its storage usage.
type ArchetypeViewer struct {
	archetypes     []ArchetypeInfo
	selectedArchId *ecs.ArchetypeId
	sortColumn     int
	sortAscending  bool
}

func NewArchetypeViewer() *ArchetypeViewer {
	return &ArchetypeViewer{
		sortColumn:    archColumnEntities,
		sortAscending: false,
	}
}

// Render draws the viewer and returns the archetype clicked this frame, if any.
func (av *ArchetypeViewer) Render(w *ecs.World) *ecs.ArchetypeId {
	if !imgui.BeginV("Archetype Viewer", nil, imgui.WindowFlagsNone) {
		imgui.End()
		return nil
	}
	defer imgui.End()

	av.refresh(w)

	maxEntityCount := 0
	for _, arch := range av.archetypes {
		maxEntityCount = max(maxEntityCount, arch.EntityCount)
	}

	const tableFlags = imgui.TableFlagsBorders | imgui.TableFlagsRowBg | imgui.TableFlagsSortable | imgui.TableFlagsScrollY
	if !imgui.BeginTableV("ArchetypeTable", 5, tableFlags, imgui.NewVec2(0, 0), 0) {
		return nil
	}
	imgui.TableSetupColumn("Archetype")
	imgui.TableSetupColumn("Components")
	imgui.TableSetupColumn("Entities")
	imgui.TableSetupColumn("Chunks")
	imgui.TableSetupColumn("Per Chunk")
	imgui.TableHeadersRow()

	sortSpecs := imgui.TableGetSortSpecs()
	if sortSpecs.SpecsDirty() && sortSpecs.SpecsCount() > 0 {
		spec := sortSpecs.Specs()
		av.sortColumn = int(spec.ColumnIndex())
		av.sortAscending = spec.SortDirection() == imgui.SortDirectionAscending
		av.sort()
		sortSpecs.SetSpecsDirty(false)
	}

	var clicked *ecs.ArchetypeId
	for _, arch := range av.archetypes {
		imgui.TableNextRow()

		imgui.TableNextColumn()
		isSelected := av.selectedArchId != nil && *av.selectedArchId == arch.ID
		if imgui.SelectableBoolV(fmt.Sprintf("#%d", arch.ID), isSelected, imgui.SelectableFlagsSpanAllColumns, imgui.NewVec2(0, 0)) {
			id := arch.ID
			clicked = &id
			av.selectedArchId = &id
		}

		imgui.TableNextColumn()
		imgui.Text(strings.Join(arch.ComponentTypes, ", "))

		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", arch.EntityCount))
		if maxEntityCount > 0 {
			barWidth := float32(arch.EntityCount) / float32(maxEntityCount) * 80.0
			imgui.SameLine()
			drawList := imgui.WindowDrawList()
			pos := imgui.CursorScreenPos()
			color := imgui.ColorU32Vec4(imgui.NewVec4(0.2, 0.6, 0.8, 0.6))
			drawList.AddRectFilled(pos, imgui.NewVec2(pos.X+barWidth, pos.Y+10), color)
		}

		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", arch.ChunkCount))

		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", arch.EntitiesPerChunk))
	}
	imgui.EndTable()
	return clicked
}

// refresh rebuilds the rows when archetypes were added and updates the counts otherwise.
func (av *ArchetypeViewer) refresh(w *ecs.World) {
	archetypes := w.Archetypes()
	if len(av.archetypes) != len(archetypes) {
		av.archetypes = buildArchetypeInfos(w)
		av.sort()
		return
	}
	for i := range av.archetypes {
		a := archetypes[av.archetypes[i].ID]
		av.archetypes[i].EntityCount = a.EntityCount()
		av.archetypes[i].ChunkCount = a.ChunkCount()
	}
	if av.sortColumn == archColumnEntities || av.sortColumn == archColumnChunks {
		av.sort()
	}
}

func buildArchetypeInfos(w *ecs.World) []ArchetypeInfo {
	def := w.Def()
	infos := make([]ArchetypeInfo, 0, w.ArchetypeCount())
	for _, a := range w.Archetypes() {
		infos = append(infos, ArchetypeInfo{
			ID:               a.Id(),
			ComponentTypes:   compNames(def, a.Comps()),
			EntityCount:      a.EntityCount(),
			ChunkCount:       a.ChunkCount(),
			EntitiesPerChunk: a.EntitiesPerChunk(),
		})
	}
	return infos
}

func (av *ArchetypeViewer) sort() {
	sortArchetypeInfos(av.archetypes, av.sortColumn, av.sortAscending)
}

func sortArchetypeInfos(infos []ArchetypeInfo, column int, ascending bool) {
	slices.SortStableFunc(infos, func(a, b ArchetypeInfo) int {
		var c int
		switch column {
		case archColumnId:
			c = cmp.Compare(a.ID, b.ID)
		case archColumnComps:
			c = cmp.Compare(strings.Join(a.ComponentTypes, ","), strings.Join(b.ComponentTypes, ","))
		case archColumnChunks:
			c = cmp.Compare(a.ChunkCount, b.ChunkCount)
		case archColumnPerChunk:
			c = cmp.Compare(a.EntitiesPerChunk, b.EntitiesPerChunk)
		default:
			c = cmp.Compare(a.EntityCount, b.EntityCount)
		}
		if !ascending {
			return -c
		}
		return c
	})
}

func compNames(def *ecs.Def, comps []ecs.CompId) []string {
	names := make([]string, len(comps))
	for i, c := range comps {
		names[i] = def.CompName(c)
	}
	return names
}
