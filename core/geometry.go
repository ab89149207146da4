package core

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Skryldev/image-store/errors"
)

// ── Dimension ─────────────────────────────────────────────────────────────────

// Dimension is a requested width or height: unset, "auto", or a positive
// pixel count. The zero value is unset.
type Dimension struct {
	px   int
	auto bool
}

// Auto is the free dimension; the Resampler derives it from the aspect ratio.
var Auto = Dimension{auto: true}

// Px returns a concrete dimension. Px(0) is unset and inherits the store
// default on resolution; a negative value is kept so that Validate rejects it.
func Px(n int) Dimension { return Dimension{px: n} }

// Validate rejects negative pixel counts.
func (d Dimension) Validate() error {
	if !d.auto && d.px < 0 {
		return apperrors.New(apperrors.CategoryValidation, "dimension",
			fmt.Errorf("%w: got %d", apperrors.ErrInvalidDimension, d.px))
	}
	return nil
}

// ParseDimension accepts "", "0", "auto" or a positive decimal integer.
func ParseDimension(s string) (Dimension, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "0":
		return Dimension{}, nil
	case "auto":
		return Auto, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Dimension{}, apperrors.New(apperrors.CategoryValidation, "dimension.parse",
			fmt.Errorf("%w: got %q", apperrors.ErrInvalidDimension, s))
	}
	return Px(n), nil
}

func (d Dimension) IsSet() bool  { return d.auto || d.px > 0 }
func (d Dimension) IsAuto() bool { return d.auto }

// Pixels returns the concrete value, or 0 for unset and auto.
func (d Dimension) Pixels() int {
	if d.auto {
		return 0
	}
	return d.px
}

// String renders the dimension as it appears in variant file names.
func (d Dimension) String() string {
	switch {
	case d.auto:
		return "auto"
	case d.px > 0:
		return strconv.Itoa(d.px)
	}
	return ""
}

// ── Anchor / Option ───────────────────────────────────────────────────────────

// Anchor names the region kept by a crop or the placement used by a fill.
type Anchor string

const (
	AnchorCenter      Anchor = "C"
	AnchorTop         Anchor = "T"
	AnchorBottom      Anchor = "B"
	AnchorLeft        Anchor = "L"
	AnchorRight       Anchor = "R"
	AnchorTopLeft     Anchor = "TL"
	AnchorTopRight    Anchor = "TR"
	AnchorBottomLeft  Anchor = "BL"
	AnchorBottomRight Anchor = "BR"
)

func (a Anchor) valid() bool {
	switch a {
	case AnchorCenter, AnchorTop, AnchorBottom, AnchorLeft, AnchorRight,
		AnchorTopLeft, AnchorTopRight, AnchorBottomLeft, AnchorBottomRight:
		return true
	}
	return false
}

// Offset places a box with slack (dx, dy) inside a larger one and returns the
// top-left corner of the inner box for this anchor.
func (a Anchor) Offset(dx, dy int) (x, y int) {
	x, y = dx/2, dy/2
	switch a {
	case AnchorTop, AnchorTopLeft, AnchorTopRight:
		y = 0
	case AnchorBottom, AnchorBottomLeft, AnchorBottomRight:
		y = dy
	}
	switch a {
	case AnchorLeft, AnchorTopLeft, AnchorBottomLeft:
		x = 0
	case AnchorRight, AnchorTopRight, AnchorBottomRight:
		x = dx
	}
	return x, y
}

// Option is a crop or fill request: a plain flag or a named strategy.
type Option struct {
	Enabled  bool
	Strategy Anchor // empty for the plain flag
}

// On returns an enabled option without a strategy.
func On() Option { return Option{Enabled: true} }

// With returns an enabled option with the given strategy.
func With(a Anchor) Option { return Option{Enabled: true, Strategy: a} }

// Label returns the descriptor appended to variant file names.
func (o Option) Label(def string) string {
	if !o.Enabled {
		return ""
	}
	if o.Strategy != "" {
		return string(o.Strategy)
	}
	return def
}

// Anchor returns the strategy, defaulting to the centre.
func (o Option) Anchor() Anchor {
	if o.Strategy == "" {
		return AnchorCenter
	}
	return o.Strategy
}

// ── Geometry ──────────────────────────────────────────────────────────────────

// Geometry is an immutable per-request description of the wanted variant.
// Values are passed explicitly through every call and never stored on the
// store.
type Geometry struct {
	Width  Dimension
	Height Dimension
	Crop   Option
	Fill   Option
}

// Validate rejects negative dimensions and option strategies outside the
// anchor set. Fields are checked in a fixed order: width, height, crop, fill.
func (g Geometry) Validate() error {
	if err := g.Width.Validate(); err != nil {
		return err
	}
	if err := g.Height.Validate(); err != nil {
		return err
	}
	if err := validateOption("crop", g.Crop); err != nil {
		return err
	}
	return validateOption("fill", g.Fill)
}

func validateOption(name string, o Option) error {
	if o.Strategy == "" {
		return nil
	}
	if !o.Enabled || !o.Strategy.valid() {
		return apperrors.New(apperrors.CategoryValidation, "geometry."+name,
			fmt.Errorf("%w: %q", apperrors.ErrUnknownAnchor, o.Strategy))
	}
	return nil
}

// Resolve fills unset dimensions from def.
func (g Geometry) Resolve(def Geometry) Geometry {
	if !g.Width.IsSet() {
		g.Width = def.Width
	}
	if !g.Height.IsSet() {
		g.Height = def.Height
	}
	return g
}

// ParseGeometry builds a Geometry from textual dimensions and option tokens.
// Each option token is "crop", "fill", "crop=<anchor>" or "fill=<anchor>";
// a value of "true" or "false" toggles the plain flag.
func ParseGeometry(width, height string, options ...string) (Geometry, error) {
	var (
		g   Geometry
		err error
	)
	if g.Width, err = ParseDimension(width); err != nil {
		return Geometry{}, err
	}
	if g.Height, err = ParseDimension(height); err != nil {
		return Geometry{}, err
	}
	for _, tok := range options {
		key, val, _ := strings.Cut(strings.TrimSpace(tok), "=")
		var dst *Option
		switch key {
		case "crop":
			dst = &g.Crop
		case "fill":
			dst = &g.Fill
		default:
			return Geometry{}, apperrors.New(apperrors.CategoryValidation, "geometry.options",
				fmt.Errorf("%w: %q", apperrors.ErrUnknownOption, key))
		}
		opt, err := parseOption(val)
		if err != nil {
			return Geometry{}, err
		}
		*dst = opt
	}
	return g, g.Validate()
}

func parseOption(val string) (Option, error) {
	switch val {
	case "", "true":
		return On(), nil
	case "false":
		return Option{}, nil
	}
	a := Anchor(strings.ToUpper(val))
	if !a.valid() {
		return Option{}, apperrors.New(apperrors.CategoryValidation, "geometry.options",
			fmt.Errorf("%w: %q", apperrors.ErrUnknownAnchor, val))
	}
	return With(a), nil
}

// ParseSpec parses the compact form "WxH[:opt,opt...]", e.g. "300xauto",
// "120x120:crop=T" or "640x480:fill". Either side of the "x" may be empty.
func ParseSpec(s string) (Geometry, error) {
	size, opts, _ := strings.Cut(strings.TrimSpace(s), ":")
	w, h, ok := strings.Cut(size, "x")
	if !ok {
		return Geometry{}, apperrors.New(apperrors.CategoryValidation, "geometry.spec",
			fmt.Errorf("%w: %q is not WxH", apperrors.ErrInvalidDimension, s))
	}
	var tokens []string
	if opts != "" {
		tokens = strings.Split(opts, ",")
	}
	return ParseGeometry(w, h, tokens...)
}

// String renders g in the ParseSpec form.
func (g Geometry) String() string {
	s := g.Width.String() + "x" + g.Height.String()
	var opts []string
	if g.Crop.Enabled {
		opts = append(opts, optionToken("crop", g.Crop))
	}
	if g.Fill.Enabled {
		opts = append(opts, optionToken("fill", g.Fill))
	}
	if len(opts) > 0 {
		s += ":" + strings.Join(opts, ",")
	}
	return s
}

func optionToken(key string, o Option) string {
	if o.Strategy == "" {
		return key
	}
	return key + "=" + string(o.Strategy)
}
