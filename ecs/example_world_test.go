package ecs_test

import (
	"fmt"

	"github.com/plus3/strata/ecs"
)

// ExampleWorld shows deferred structural changes: nothing is visible until the world is flushed.
func ExampleWorld() {
	def := ecs.NewDef()
	position := ecs.RegisterComponent[Position](def)
	velocity := ecs.RegisterComponent[Velocity](def)
	moving := def.RegisterView("moving", func(b *ecs.ViewBuilder) {
		b.Write(position).Read(velocity)
	})

	w := ecs.NewWorld(def)
	defer w.Close()

	for i := range 3 {
		e := w.CreateEntity()
		position.Add(w, e, Position{X: float32(i)})
		if i > 0 {
			velocity.Add(w, e, Velocity{DX: 10})
		}
	}
	fmt.Println("before flush:", w.View(moving).EntityCount())

	w.Flush()
	fmt.Println("after flush:", w.View(moving).EntityCount())

	for itr := w.View(moving).Iter(); itr.Walk(); {
		pos := position.Write(itr)
		pos.X += velocity.Read(itr).DX
		fmt.Printf("%s x=%.0f\n", itr.Entity(), pos.X)
	}

	// Output:
	// before flush: 0
	// after flush: 2
	// entity{2:3} x=11
	// entity{3:4} x=12
}

// ExampleWithCombinator merges repeated additions of a component before a flush.
func ExampleWithCombinator() {
	type Damage struct {
		Amount int
	}
	def := ecs.NewDef()
	damage := ecs.RegisterComponent(def, ecs.WithCombinator(func(dst, src *Damage) {
		dst.Amount += src.Amount
	}))
	w := ecs.NewWorld(def)
	defer w.Close()

	target := w.CreateEntity()
	damage.Add(w, target, Damage{Amount: 5})
	damage.Add(w, target, Damage{Amount: 7})
	w.Flush()

	fmt.Println((*Damage)(w.CompData(target, damage.Id())).Amount)

	// Output:
	// 12
}

// ExampleNewSingleton stores world-wide state on the global entity.
func ExampleNewSingleton() {
	type GameConfig struct {
		MaxPlayers int
		Difficulty string
	}
	def := ecs.NewDef()
	configComp := ecs.RegisterComponent[GameConfig](def)
	w := ecs.NewWorld(def)
	defer w.Close()

	config := ecs.NewSingleton(w, configComp, GameConfig{MaxPlayers: 4, Difficulty: "Normal"})
	config.Get().Difficulty = "Hard"

	same := ecs.NewSingleton(w, configComp)
	fmt.Printf("%d players, %s difficulty\n", same.Get().MaxPlayers, same.Get().Difficulty)

	// Output:
	// 4 players, Hard difficulty
}
