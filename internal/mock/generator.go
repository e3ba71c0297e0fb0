// Package mock generates synthetic gameplay for demo runs. It appends
// game-log lines to a file that the regular tailer consumes, so the
// whole pipeline (tail, parse, dispatch, stats) runs exactly as it
// would against the real game.
package mock

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/kripika/tli-tracker/internal/catalog"
)

const hideoutScene = "Hideout01"

var mapScenes = []string{
	"NetherRealm_Frostfall",
	"NetherRealm_Cinderwastes",
	"NetherRealm_SunkenRuins",
	"NetherRealm_VoidCrossing",
}

type demoItem struct {
	gameID int64
	name   string
	nameRU string
	price  float64
}

const baseCurrencyID int64 = 100300

var demoDrops = []demoItem{
	{gameID: 110300301, name: "Flame Sand", nameRU: "Огненный песок", price: 0.4},
	{gameID: 110300302, name: "Flame Fuel", nameRU: "Огненное топливо", price: 2.1},
	{gameID: 120100201, name: "Energy Core", nameRU: "Энергетическое ядро", price: 6.5},
	{gameID: 130200105, name: "Prototype Compass", nameRU: "Прототип компаса", price: 14},
	{gameID: 140500110, name: "Divinity Slate", nameRU: "Плита божественности", price: 48},
}

// Catalog returns the builtin item set demo runs are seeded with, since
// no remote catalog is fetched in demo mode.
func Catalog() []catalog.Item {
	items := []catalog.Item{
		{GameID: baseCurrencyID, Name: "Flame Elementium", NameRU: "Огненный элементий", Category: "currency", IsBaseCurrency: true},
	}
	for _, d := range demoDrops {
		items = append(items, catalog.Item{
			GameID:   d.gameID,
			Name:     d.name,
			NameRU:   d.nameRU,
			Category: "currency",
		})
	}
	return items
}

// Generator writes a plausible farm loop: enter a map, drop items and
// the odd auction price check, exit to the hideout, idle, repeat.
type Generator struct {
	path string
	rng  *rand.Rand

	onMap     bool
	scene     string
	ticksLeft int
	syncID    int64
	frame     int
}

func NewGenerator(path string) *Generator {
	return &Generator{
		path:      path,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		ticksLeft: 1,
	}
}

func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.step()
		}
	}
}

func (g *Generator) step() {
	if g.onMap {
		g.emitDrops()
		g.ticksLeft--
		if g.ticksLeft <= 0 {
			g.writeLine(fmt.Sprintf("LogStage: Display: SwitchStage cur=%s next=%s", g.scene, hideoutScene))
			g.onMap = false
			g.ticksLeft = 2 + g.rng.Intn(2)
		}
		return
	}

	g.ticksLeft--
	if g.ticksLeft <= 0 {
		g.scene = mapScenes[g.rng.Intn(len(mapScenes))]
		g.writeLine(fmt.Sprintf("LogStage: Display: SwitchStage cur=%s next=%s", hideoutScene, g.scene))
		g.onMap = true
		g.ticksLeft = 4 + g.rng.Intn(4)
	}
}

func (g *Generator) emitDrops() {
	n := 1 + g.rng.Intn(2)
	for i := 0; i < n; i++ {
		it := demoDrops[g.rng.Intn(len(demoDrops))]
		qty := 1 + g.rng.Intn(3)
		g.writeLine(fmt.Sprintf("LogBag: Display: AddItem itemId=%d num=%d page=%d slot=%d",
			it.gameID, qty, g.rng.Intn(4), g.rng.Intn(60)))
	}

	if g.rng.Intn(5) == 0 {
		it := demoDrops[g.rng.Intn(len(demoDrops))]
		mid := it.price * (0.9 + 0.2*g.rng.Float64())
		g.syncID++
		g.writeLine(fmt.Sprintf("LogAuction: Display: SearchPrice itemId=%d currencyId=%d syncId=%d prices=%.2f,%.2f,%.2f",
			it.gameID, baseCurrencyID, g.syncID, mid*0.95, mid, mid*1.1))
	}
}

func (g *Generator) writeLine(body string) {
	g.frame++
	now := time.Now()
	line := fmt.Sprintf("[%s:%03d][%3d]%s\n",
		now.Format("2006.01.02-15.04.05"), now.Nanosecond()/1e6, g.frame%1000, body)

	f, err := os.OpenFile(g.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[mock] opening demo log: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		log.Printf("[mock] writing demo log: %v", err)
	}
}
