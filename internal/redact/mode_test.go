package redact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/local/redactor/internal/content"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		req   Mode
		class PageContentType
		want  Mode
	}{
		{ModeAuto, content.ClassText, ModeTextReplace},
		{ModeAuto, content.ClassImageBased, ModeImage},
		{ModeAuto, content.ClassPathDrawn, ModeSafeRender},
		{ModeAuto, content.ClassMixed, ModeSafeRender},
		{ModeAuto, content.ClassEmpty, ModeBlackOverlay},
		{ModeBlackOverlay, content.ClassText, ModeBlackOverlay},
		{ModeImage, content.ClassText, ModeImage},
		{ModeTextReplace, content.ClassImageBased, ModeTextReplace},
	}
	for _, tt := range tests {
		if got := Resolve(tt.req, tt.class); got != tt.want {
			t.Errorf("Resolve(%v, %v) = %v, want %v", tt.req, tt.class, got, tt.want)
		}
	}
}

func TestResolveFile(t *testing.T) {
	tests := []struct {
		req     Mode
		classes []PageContentType
		want    Mode
	}{
		{ModeSafeRender, nil, ModeSafeRender},
		{ModeAuto, []PageContentType{content.ClassText, content.ClassMixed}, ModeSafeRender},
		{ModeAuto, []PageContentType{content.ClassPathDrawn}, ModeSafeRender},
		{ModeAuto, []PageContentType{content.ClassText, content.ClassImageBased}, ModeAuto},
		{ModeAuto, nil, ModeAuto},
		{ModeTextReplace, []PageContentType{content.ClassMixed}, ModeTextReplace},
	}
	for _, tt := range tests {
		if got := ResolveFile(tt.req, tt.classes); got != tt.want {
			t.Errorf("ResolveFile(%v, %v) = %v, want %v", tt.req, tt.classes, got, tt.want)
		}
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		classes []PageContentType
		want    Mode
	}{
		{nil, ModeAuto},
		{[]PageContentType{content.ClassText, content.ClassEmpty}, ModeTextReplace},
		{[]PageContentType{content.ClassText, content.ClassImageBased, content.ClassMixed}, ModeImage},
		{[]PageContentType{content.ClassText, content.ClassPathDrawn}, ModeSafeRender},
		{[]PageContentType{content.ClassMixed}, ModeSafeRender},
	}
	for _, tt := range tests {
		if got := Recommend(tt.classes); got != tt.want {
			t.Errorf("Recommend(%v) = %v, want %v", tt.classes, got, tt.want)
		}
	}
}

func TestModeJSON(t *testing.T) {
	var req struct {
		Mode Mode `json:"mode"`
	}
	if err := json.Unmarshal([]byte(`{"mode":"image_mode"}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.Mode != ModeImage {
		t.Errorf("mode = %v", req.Mode)
	}
	b, _ := json.Marshal(ModeSafeRender)
	if string(b) != `"safe_render"` {
		t.Errorf("marshal = %s", b)
	}
	if err := json.Unmarshal([]byte(`{"mode":"shred"}`), &req); err == nil {
		t.Error("unknown mode accepted")
	}
	if m, err := ParseMode(""); err != nil || m != ModeAuto {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
}

// TestChain tests first-success-wins ordering, attempt recording and fatal stops.
func TestChain(t *testing.T) {
	ok := func(context.Context) error { return nil }
	soft := func(context.Context) error { return ErrNoPaintableImage }
	fatal := func(context.Context) error { return &StreamEncodeError{File: "a.pdf", Err: errors.New("boom")} }

	out, err := Chain{{"a", soft}, {"b", ok}, {"c", ok}}.Run(context.Background())
	if err != nil || out.Ran != "b" || len(out.Attempts) != 2 || len(out.Warnings) != 1 {
		t.Errorf("soft fallback: %+v, %v", out, err)
	}

	out, err = Chain{{"a", fatal}, {"b", ok}}.Run(context.Background())
	if !IsFatal(err) || out.Ran != "" || len(out.Attempts) != 1 {
		t.Errorf("fatal: %+v, %v", out, err)
	}

	out, err = Chain{{"a", soft}, {"b", soft}}.Run(context.Background())
	if !errors.Is(err, ErrNoPaintableImage) || len(out.Attempts) != 2 {
		t.Errorf("exhausted: %+v, %v", out, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Chain{{"a", ok}}).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled chain err = %v", err)
	}
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		err             error
		fatal, fallback bool
	}{
		{nil, false, false},
		{&LoadError{File: "a", Err: errors.New("x")}, true, false},
		{fmt.Errorf("wrap: %w", &StreamEncodeError{File: "a", Err: errors.New("x")}), true, false},
		{&RenderBackendUnavailable{File: "a", Err: errors.New("x")}, false, true},
		{&ImageDecodeError{File: "a", Image: "Im0", Err: errors.New("x")}, false, true},
		{fmt.Errorf("page 1: %w", ErrNoPaintableImage), false, true},
		{errors.New("other"), false, false},
	}
	for _, tt := range tests {
		if IsFatal(tt.err) != tt.fatal || IsFallback(tt.err) != tt.fallback {
			t.Errorf("%v: fatal=%v fallback=%v", tt.err, IsFatal(tt.err), IsFallback(tt.err))
		}
	}
}
