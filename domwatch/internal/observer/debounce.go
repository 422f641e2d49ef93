package observer

import (
	"time"

	"github.com/hazyhaar/chatmd/domwatch/mutation"
)

// debounceConfig controls the batching behaviour.
type debounceConfig struct {
	// Window is the quiet time that closes a batch. Default: 250ms.
	Window time.Duration
	// MaxDelay caps how long a record may wait while the page keeps
	// changing, as it does while an answer streams. Default: 1s.
	MaxDelay time.Duration
	// MaxBuffer flushes immediately when this many records accumulate. Default: 1000.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 250 * time.Millisecond
	}
	if dc.MaxDelay < dc.Window {
		dc.MaxDelay = 4 * dc.Window
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
}

// debouncer collects records and hands compressed runs to flushFn.
type debouncer struct {
	cfg     debounceConfig
	records []mutation.Record
	first   time.Time
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]mutation.Record)
	now     func() time.Time
}

func newDebouncer(cfg debounceConfig, flushFn func([]mutation.Record)) *debouncer {
	cfg.defaults()
	return &debouncer{
		cfg:     cfg,
		records: make([]mutation.Record, 0, cfg.MaxBuffer),
		flushFn: flushFn,
		now:     time.Now,
	}
}

// add buffers rec. It reports whether a flush happened.
func (d *debouncer) add(rec mutation.Record) bool {
	if len(d.records) == 0 {
		d.first = d.now()
	}
	d.records = append(d.records, rec)

	if len(d.records) >= d.cfg.MaxBuffer || d.now().Sub(d.first) >= d.cfg.MaxDelay {
		d.flush()
		return true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC fires when the window closes. Nil while nothing is buffered.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// flush compresses and emits the buffered records, then resets.
func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if len(d.records) == 0 {
		return
	}
	out := compress(d.records)
	d.records = make([]mutation.Record, 0, d.cfg.MaxBuffer)
	d.flushFn(out)
}

// compress folds runs of consecutive records that overwrite each other:
// children and text on the same xpath, attr on the same (xpath, name).
// The kept record is the last one, carrying the first OldValue.
func compress(records []mutation.Record) []mutation.Record {
	if len(records) <= 1 {
		return records
	}

	result := make([]mutation.Record, 0, len(records))
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if !foldable(rec.Op) {
			result = append(result, rec)
			continue
		}
		firstOld := rec.OldValue
		j := i + 1
		for j < len(records) && overwrites(rec, records[j]) {
			rec = records[j]
			j++
		}
		rec.OldValue = firstOld
		result = append(result, rec)
		i = j - 1
	}
	return result
}

func foldable(op mutation.Op) bool {
	return op == mutation.OpChildren || op == mutation.OpText || op == mutation.OpAttr
}

func overwrites(prev, next mutation.Record) bool {
	if next.Op != prev.Op || next.XPath != prev.XPath {
		return false
	}
	return prev.Op != mutation.OpAttr || next.Name == prev.Name
}
