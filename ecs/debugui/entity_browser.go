package debugui

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/plus3/strata/ecs"
)

type EntityInfo struct {
	ID             ecs.EntityId
	ArchetypeID    ecs.ArchetypeId
	ComponentTypes []string
}

// EntityBrowser lists entities with filtering and paging.
type EntityBrowser struct {
	entities      []EntityInfo
	lastFlush     uint64
	built         bool
	sortColumn    int
	sortAscending bool

	selected          ecs.EntityId
	filterText        string
	filterArchetypeId *ecs.ArchetypeId
	perPage           int
	page              int
}

func NewEntityBrowser(perPage int) *EntityBrowser {
	return &EntityBrowser{
		sortAscending: true,
		perPage:       perPage,
	}
}

// FilterArchetype restricts the list to one archetype; nil clears the restriction.
func (eb *EntityBrowser) FilterArchetype(id *ecs.ArchetypeId) {
	eb.filterArchetypeId = id
	eb.page = 0
}

// Selected returns the selected entity, or zero.
func (eb *EntityBrowser) Selected() ecs.EntityId {
	return eb.selected
}

func (eb *EntityBrowser) Render(w *ecs.World) {
	if !imgui.BeginV("Entity Browser", nil, imgui.WindowFlagsNone) {
		imgui.End()
		return
	}
	defer imgui.End()

	eb.refresh(w)

	if imgui.InputTextWithHint("##search", "Search...", &eb.filterText, imgui.InputTextFlagsNone, nil) {
		eb.page = 0
	}
	imgui.SameLine()
	if imgui.Button("Clear Filter") {
		eb.filterText = ""
		eb.FilterArchetype(nil)
	}

	filtered := filterEntities(eb.entities, eb.filterText, eb.filterArchetypeId)
	start, end := pageBounds(len(filtered), eb.page, eb.perPage)

	const tableFlags = imgui.TableFlagsBorders | imgui.TableFlagsRowBg | imgui.TableFlagsSortable | imgui.TableFlagsScrollY
	if imgui.BeginTableV("EntityTable", 4, tableFlags, imgui.NewVec2(0, 0), 0) {
		imgui.TableSetupColumn("Entity")
		imgui.TableSetupColumn("Archetype")
		imgui.TableSetupColumn("Components")
		imgui.TableSetupColumn("Count")
		imgui.TableHeadersRow()

		sortSpecs := imgui.TableGetSortSpecs()
		if sortSpecs.SpecsDirty() && sortSpecs.SpecsCount() > 0 {
			spec := sortSpecs.Specs()
			eb.sortColumn = int(spec.ColumnIndex())
			eb.sortAscending = spec.SortDirection() == imgui.SortDirectionAscending
			sortEntityInfos(eb.entities, eb.sortColumn, eb.sortAscending)
			sortSpecs.SetSpecsDirty(false)
		}

		for _, entity := range filtered[start:end] {
			imgui.TableNextRow()

			imgui.TableNextColumn()
			if imgui.SelectableBoolV(entity.ID.String(), eb.selected == entity.ID, imgui.SelectableFlagsSpanAllColumns, imgui.NewVec2(0, 0)) {
				eb.selected = entity.ID
			}

			imgui.TableNextColumn()
			imgui.Text(fmt.Sprintf("#%d", entity.ArchetypeID))

			imgui.TableNextColumn()
			imgui.Text(strings.Join(entity.ComponentTypes, ", "))

			imgui.TableNextColumn()
			imgui.Text(fmt.Sprintf("%d", len(entity.ComponentTypes)))
		}
		imgui.EndTable()
	}

	if len(filtered) > eb.perPage {
		totalPages := (len(filtered) + eb.perPage - 1) / eb.perPage
		imgui.Text(fmt.Sprintf("Page %d / %d (%d entities)", eb.page+1, totalPages, len(filtered)))
		imgui.SameLine()
		if imgui.Button("Prev") && eb.page > 0 {
			eb.page--
		}
		imgui.SameLine()
		if imgui.Button("Next") && eb.page < totalPages-1 {
			eb.page++
		}
	} else {
		imgui.Text(fmt.Sprintf("Total: %d entities", len(filtered)))
	}
}

// refresh rebuilds the list after every flush of the world.
func (eb *EntityBrowser) refresh(w *ecs.World) {
	if eb.built && eb.lastFlush == w.FlushCount() {
		return
	}
	eb.entities = buildEntityInfos(w)
	sortEntityInfos(eb.entities, eb.sortColumn, eb.sortAscending)
	eb.lastFlush = w.FlushCount()
	eb.built = true
}

func buildEntityInfos(w *ecs.World) []EntityInfo {
	def := w.Def()
	infos := make([]EntityInfo, 0, w.EntityCount())
	for _, a := range w.Archetypes() {
		names := compNames(def, a.Comps())
		for e := range a.Entities() {
			infos = append(infos, EntityInfo{ID: e, ArchetypeID: a.Id(), ComponentTypes: names})
		}
	}
	return infos
}

func sortEntityInfos(infos []EntityInfo, column int, ascending bool) {
	slices.SortStableFunc(infos, func(a, b EntityInfo) int {
		var c int
		switch column {
		case 1:
			c = cmp.Compare(a.ArchetypeID, b.ArchetypeID)
		case 2:
			c = cmp.Compare(strings.Join(a.ComponentTypes, ","), strings.Join(b.ComponentTypes, ","))
		case 3:
			c = cmp.Compare(len(a.ComponentTypes), len(b.ComponentTypes))
		default:
			c = cmp.Compare(a.ID.Index(), b.ID.Index())
		}
		if !ascending {
			return -c
		}
		return c
	})
}

// filterEntities matches the text against the entity id, the archetype and the component names.
func filterEntities(infos []EntityInfo, text string, archetype *ecs.ArchetypeId) []EntityInfo {
	if text == "" && archetype == nil {
		return infos
	}

	filtered := make([]EntityInfo, 0, len(infos))
	needle := strings.ToLower(text)
	for _, entity := range infos {
		if archetype != nil && entity.ArchetypeID != *archetype {
			continue
		}
		if needle != "" {
			idStr := entity.ID.String()
			archStr := fmt.Sprintf("#%d", entity.ArchetypeID)
			comps := strings.ToLower(strings.Join(entity.ComponentTypes, " "))
			if !strings.Contains(idStr, needle) && !strings.Contains(archStr, needle) && !strings.Contains(comps, needle) {
				continue
			}
		}
		filtered = append(filtered, entity)
	}
	return filtered
}

func pageBounds(total, page, perPage int) (int, int) {
	start := min(page*perPage, total)
	return start, min(start+perPage, total)
}
