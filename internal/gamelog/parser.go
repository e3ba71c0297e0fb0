package gamelog

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The game writes an Unreal-style log. Three line shapes matter to us:
//
//	[2026.08.23-14.03.55:123][  7]LogBag: Display: AddItem itemId=110300301 num=3 page=1 slot=12
//	[2026.08.23-14.03.55:456][  9]LogAuction: Display: SearchPrice itemId=110300301 currencyId=100 syncId=8 prices=12.5,13.0,14.2
//	[2026.08.23-14.03.55:789][ 11]LogStage: Display: SwitchStage cur=Hideout01 next=NetherRealm_Frostfall
//
// Everything else is ignored. Timestamps are local time; lines without a
// parsable timestamp fall back to the receipt time supplied by the tailer.
var (
	tsRe    = regexp.MustCompile(`^\[(\d{4}\.\d{2}\.\d{2}-\d{2}\.\d{2}\.\d{2}):(\d{3})\]`)
	dropRe  = regexp.MustCompile(`LogBag: Display: AddItem itemId=(\d+) num=(-?\d+) page=(\d+) slot=(\d+)`)
	priceRe = regexp.MustCompile(`LogAuction: Display: SearchPrice itemId=(\d+) currencyId=(\d+) syncId=(\d+) prices=([0-9.,]*)`)
	sceneRe = regexp.MustCompile(`LogStage: Display: SwitchStage cur=(\S+) next=(\S+)`)
)

const ueTimeLayout = "2006.01.02-15.04.05"

// ParseLine converts one raw log line into an event. The second return is
// false for lines that carry no event: unknown shapes, scene switches the
// session engine does not track, and bag removals (negative num).
func ParseLine(line string, receivedAt time.Time) (Event, bool) {
	ts := lineTime(line, receivedAt)

	if m := dropRe.FindStringSubmatch(line); m != nil {
		gameID, _ := strconv.ParseInt(m[1], 10, 64)
		num, _ := strconv.Atoi(m[2])
		if num <= 0 {
			// Items leaving the bag (selling, crafting) are not drops.
			return nil, false
		}
		page, _ := strconv.Atoi(m[3])
		slot, _ := strconv.Atoi(m[4])
		return ItemDrop{GameID: gameID, Quantity: num, PageID: page, SlotID: slot, Time: ts}, true
	}

	if m := priceRe.FindStringSubmatch(line); m != nil {
		gameID, _ := strconv.ParseInt(m[1], 10, 64)
		currencyID, _ := strconv.ParseInt(m[2], 10, 64)
		syncID, _ := strconv.ParseInt(m[3], 10, 64)
		return PriceSearch{
			GameID:     gameID,
			Prices:     parsePriceList(m[4]),
			CurrencyID: currencyID,
			SyncID:     syncID,
			Time:       ts,
		}, true
	}

	if m := sceneRe.FindStringSubmatch(line); m != nil {
		if t, ok := classifyScene(m[2]); ok {
			return MapChange{Type: t, Scene: m[2], Time: ts}, true
		}
	}

	return nil, false
}

func lineTime(line string, fallback time.Time) time.Time {
	m := tsRe.FindStringSubmatch(line)
	if m == nil {
		return fallback
	}
	t, err := time.ParseInLocation(ueTimeLayout, m[1], time.Local)
	if err != nil {
		return fallback
	}
	ms, _ := strconv.Atoi(m[2])
	return t.Add(time.Duration(ms) * time.Millisecond)
}

func parsePriceList(raw string) []float64 {
	if raw == "" {
		return nil
	}
	var prices []float64
	for _, tok := range strings.Split(raw, ",") {
		p, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		prices = append(prices, p)
	}
	return prices
}

// classifyScene maps a destination scene name to the transition it
// represents. Scenes that are neither farmable maps nor hideouts (towns,
// login, cutscenes) produce no event at all.
func classifyScene(scene string) (MapEventType, bool) {
	lower := strings.ToLower(scene)
	switch {
	case strings.Contains(lower, "netherrealm"):
		return EnterMap, true
	case strings.Contains(lower, "hideout") || strings.HasPrefix(lower, "home"):
		return ExitToHideout, true
	}
	return 0, false
}
