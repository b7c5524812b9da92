package main

import (
	"context"
	"log"

	"brawlarena.ai/internal/presence"
	"brawlarena.ai/internal/sim/catalogs"
	"brawlarena.ai/internal/sim/world"
)

// arena binds the presence lobby to a running world: when everyone is ready
// the roster is spawned, later joiners appear as remote characters and
// leavers are removed.
type arena struct {
	ctx       context.Context
	store     *presence.Store
	world     *world.World
	cats      *catalogs.Catalogs
	character string
	log       *log.Logger
}

// wire registers the store callbacks. They run on the backend's delivery
// goroutine (or inside PublishSelf for records that predate the join), so
// world requests are handed to their own goroutines.
func (a *arena) wire() {
	a.store.OnPlaying(func() {
		roster := a.store.Users()
		go a.spawnRoster(roster)
	})
	a.store.WatchAdded(func(ev presence.Event) {
		if a.store.Status() != presence.StatusPlaying || ev.Key == a.store.Key() {
			return
		}
		idx := len(a.store.Users()) - 1
		p := a.placement(presence.UserView{Key: ev.Key, Record: ev.Record, DisplayIndex: idx})
		go a.request(p)
	})
	a.store.WatchRemoved(func(ev presence.Event) {
		key := ev.Key
		go func() {
			if err := a.world.RequestRemove(a.ctx, key); err != nil {
				a.log.Printf("remove %s: %v", key, err)
			}
		}()
	})
}

func (a *arena) spawnRoster(roster []presence.UserView) {
	for _, u := range roster {
		a.request(a.placement(u))
	}
	a.log.Printf("playing with %d users", len(roster))
}

func (a *arena) request(p world.PlacedModel) {
	if err := a.world.RequestSpawn(a.ctx, p); err != nil {
		a.log.Printf("spawn %s: %v", p.Name, err)
	}
}

// placement maps a lobby row to a character placed at its spawn point.
// Unknown characters fall back to the local default.
func (a *arena) placement(u presence.UserView) world.PlacedModel {
	model := u.Record.Character
	if _, ok := a.cats.Models.ByID[model]; !ok {
		model = a.character
	}
	return world.PlacedModel{
		Name:     u.Key,
		Model:    model,
		Username: u.Key,
		Player:   true,
		Remote:   !u.Self,
		Pos:      a.world.SpawnPoint(u.DisplayIndex),
	}
}
