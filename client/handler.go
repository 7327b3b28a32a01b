package client

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/coffersTech/nanofilter/value"
)

// Handler is a slog.Handler that stores every record as a document, so
// logs can later be selected with filters such as {"level":"ERROR"}.
//
// A record becomes {"time", "level", "msg", "source": {"file","line"}} plus
// its attributes, nested under their groups.
type Handler struct {
	batcher *Batcher
	level   slog.Leveler
	attrs   []groupedAttr
	groups  []string
}

type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

// NewHandler returns a handler feeding b. A nil level means slog.LevelInfo.
func NewHandler(b *Batcher, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{batcher: b, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	doc := value.NewObject(4 + r.NumAttrs())
	doc.Set("time", value.Number(float64(r.Time.UnixMilli())))
	doc.Set("level", value.String(r.Level.String()))
	doc.Set("msg", value.String(r.Message))

	if r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		doc.Set("source", value.ObjectOf(
			value.F("file", value.String(f.File)),
			value.F("line", value.Number(float64(f.Line))),
		))
	}

	for _, ga := range h.attrs {
		setAttr(doc, ga.groups, ga.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		setAttr(doc, h.groups, a)
		return true
	})

	if !h.batcher.Add(value.ObjectValue(doc)) {
		return fmt.Errorf("nanofilter: log queue full, record dropped")
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append([]groupedAttr(nil), h.attrs...)
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, groupedAttr{groups: h.groups, attr: a})
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

func setAttr(doc *value.Object, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	target := doc
	for _, g := range groups {
		target = child(target, g)
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		if a.Key != "" {
			target = child(target, a.Key)
		}
		for _, ga := range attrs {
			setAttr(target, nil, ga)
		}
		return
	}
	target.Set(a.Key, attrValue(a.Value))
}

func child(o *value.Object, key string) *value.Object {
	if v, ok := o.Get(key); ok && v.Kind() == value.KindObject {
		return v.Object()
	}
	c := value.NewObject(2)
	o.Set(key, value.ObjectValue(c))
	return c
}

func attrValue(v slog.Value) value.Value {
	switch v.Kind() {
	case slog.KindString:
		return value.String(v.String())
	case slog.KindInt64:
		return value.Number(float64(v.Int64()))
	case slog.KindUint64:
		return value.Number(float64(v.Uint64()))
	case slog.KindFloat64:
		return value.Number(v.Float64())
	case slog.KindBool:
		return value.Bool(v.Bool())
	case slog.KindDuration:
		return value.Number(float64(v.Duration().Milliseconds()))
	case slog.KindTime:
		return value.Number(float64(v.Time().UnixMilli()))
	}
	if err, ok := v.Any().(error); ok {
		return value.String(err.Error())
	}
	if conv, err := value.FromAny(v.Any()); err == nil {
		return conv
	}
	return value.String(v.String())
}
