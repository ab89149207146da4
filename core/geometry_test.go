package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-store/core"
	apperrors "github.com/Skryldev/image-store/errors"
)

func TestParseDimension(t *testing.T) {
	tests := []struct {
		in      string
		want    core.Dimension
		wantErr bool
	}{
		{"", core.Dimension{}, false},
		{"0", core.Dimension{}, false},
		{"auto", core.Auto, false},
		{" 250 ", core.Px(250), false},
		{"large", core.Dimension{}, true},
		{"-1", core.Dimension{}, true},
		{"1.5", core.Dimension{}, true},
		{"AUTO", core.Dimension{}, true},
	}
	for _, tc := range tests {
		got, err := core.ParseDimension(tc.in)
		if tc.wantErr {
			require.Error(t, err, "input %q", tc.in)
			assert.True(t, apperrors.IsValidation(err))
			assert.ErrorIs(t, err, apperrors.ErrInvalidDimension)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestDimension(t *testing.T) {
	assert.False(t, core.Px(0).IsSet())
	assert.False(t, core.Px(-3).IsSet())
	assert.Error(t, core.Px(-3).Validate())
	assert.NoError(t, core.Px(0).Validate())
	assert.NoError(t, core.Auto.Validate())
	assert.True(t, core.Px(3).IsSet())
	assert.True(t, core.Auto.IsSet())
	assert.True(t, core.Auto.IsAuto())

	assert.Equal(t, 0, core.Auto.Pixels())
	assert.Equal(t, 120, core.Px(120).Pixels())

	assert.Equal(t, "auto", core.Auto.String())
	assert.Equal(t, "120", core.Px(120).String())
	assert.Equal(t, "", core.Dimension{}.String())
}

func TestParseGeometry(t *testing.T) {
	tests := []struct {
		name    string
		w, h    string
		opts    []string
		want    core.Geometry
		wantErr error
	}{
		{
			name: "plain",
			w:    "300", h: "200",
			want: core.Geometry{Width: core.Px(300), Height: core.Px(200)},
		},
		{
			name: "flags",
			w:    "100", h: "100", opts: []string{"crop", "fill"},
			want: core.Geometry{Width: core.Px(100), Height: core.Px(100), Crop: core.On(), Fill: core.On()},
		},
		{
			name: "strategies are case-insensitive",
			w:    "100", h: "100", opts: []string{"crop=tl", "fill=B"},
			want: core.Geometry{
				Width: core.Px(100), Height: core.Px(100),
				Crop: core.With(core.AnchorTopLeft), Fill: core.With(core.AnchorBottom),
			},
		},
		{
			name: "explicit booleans",
			w:    "auto", h: "", opts: []string{"crop=true", "fill=false"},
			want: core.Geometry{Width: core.Auto, Crop: core.On()},
		},
		{name: "unknown option", w: "1", h: "1", opts: []string{"rotate"}, wantErr: apperrors.ErrUnknownOption},
		{name: "unknown option with value", w: "1", h: "1", opts: []string{"rotate=90"}, wantErr: apperrors.ErrUnknownOption},
		{name: "unknown option with anchor", w: "1", h: "1", opts: []string{"blur=T"}, wantErr: apperrors.ErrUnknownOption},
		{name: "unknown anchor", w: "1", h: "1", opts: []string{"fill=middle"}, wantErr: apperrors.ErrUnknownAnchor},
		{name: "bad width", w: "wide", h: "1", wantErr: apperrors.ErrInvalidDimension},
		{name: "bad height", w: "1", h: "-2", wantErr: apperrors.ErrInvalidDimension},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := core.ParseGeometry(tc.w, tc.h, tc.opts...)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
				assert.True(t, apperrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGeometryValidate(t *testing.T) {
	assert.NoError(t, core.Geometry{Crop: core.With(core.AnchorRight)}.Validate())

	err := core.Geometry{Fill: core.With("Z")}.Validate()
	assert.ErrorIs(t, err, apperrors.ErrUnknownAnchor)

	// A strategy on a disabled option is inconsistent.
	err = core.Geometry{Crop: core.Option{Strategy: core.AnchorTop}}.Validate()
	assert.ErrorIs(t, err, apperrors.ErrUnknownAnchor)

	err = core.Geometry{Width: core.Px(-5)}.Validate()
	assert.True(t, apperrors.IsValidation(err))
	assert.ErrorIs(t, err, apperrors.ErrInvalidDimension)
	err = core.Geometry{Width: core.Px(10), Height: core.Px(-1)}.Validate()
	assert.ErrorIs(t, err, apperrors.ErrInvalidDimension)
}

func TestGeometryValidate_StableOrder(t *testing.T) {
	g := core.Geometry{
		Width: core.Px(-1), Height: core.Px(-2),
		Crop: core.With("X"), Fill: core.With("Y"),
	}
	var se *apperrors.StoreError
	for i := 0; i < 50; i++ {
		err := g.Validate()
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "dimension", se.Op)
		assert.Contains(t, err.Error(), "-1")
	}

	g = core.Geometry{Crop: core.With("X"), Fill: core.With("Y")}
	for i := 0; i < 50; i++ {
		err := g.Validate()
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "geometry.crop", se.Op)
		assert.Contains(t, err.Error(), `"X"`)
	}
}

func TestParseSpec(t *testing.T) {
	g, err := core.ParseSpec("120x120:crop=T,fill")
	require.NoError(t, err)
	assert.Equal(t, core.Px(120), g.Width)
	assert.Equal(t, core.With(core.AnchorTop), g.Crop)
	assert.Equal(t, core.On(), g.Fill)

	g, err = core.ParseSpec("xauto")
	require.NoError(t, err)
	assert.False(t, g.Width.IsSet())
	assert.True(t, g.Height.IsAuto())

	_, err = core.ParseSpec("120")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDimension)

	for _, spec := range []string{"300xauto", "120x120:crop=T", "640x480:fill", "10x20:crop,fill=BR"} {
		g, err := core.ParseSpec(spec)
		require.NoError(t, err)
		assert.Equal(t, spec, g.String())
	}
}

func TestGeometryResolve(t *testing.T) {
	def := core.Geometry{Width: core.Px(250), Height: core.Px(250)}

	got := core.Geometry{Height: core.Auto, Crop: core.On()}.Resolve(def)
	assert.Equal(t, core.Px(250), got.Width)
	assert.Equal(t, core.Auto, got.Height)
	assert.Equal(t, core.On(), got.Crop)

	got = core.Geometry{Width: core.Px(10), Height: core.Px(20)}.Resolve(def)
	assert.Equal(t, core.Geometry{Width: core.Px(10), Height: core.Px(20)}, got)
}

func TestAnchorOffset(t *testing.T) {
	tests := []struct {
		anchor core.Anchor
		x, y   int
	}{
		{core.AnchorCenter, 50, 20},
		{core.AnchorTop, 50, 0},
		{core.AnchorBottom, 50, 40},
		{core.AnchorLeft, 0, 20},
		{core.AnchorRight, 100, 20},
		{core.AnchorTopLeft, 0, 0},
		{core.AnchorTopRight, 100, 0},
		{core.AnchorBottomLeft, 0, 40},
		{core.AnchorBottomRight, 100, 40},
	}
	for _, tc := range tests {
		x, y := tc.anchor.Offset(100, 40)
		assert.Equal(t, tc.x, x, "anchor %s", tc.anchor)
		assert.Equal(t, tc.y, y, "anchor %s", tc.anchor)
	}
}

func TestOptionLabel(t *testing.T) {
	assert.Equal(t, "", core.Option{}.Label("crop"))
	assert.Equal(t, "crop", core.On().Label("crop"))
	assert.Equal(t, "TL", core.With(core.AnchorTopLeft).Label("crop"))
	assert.Equal(t, core.AnchorCenter, core.On().Anchor())
}

func TestInstructionFor(t *testing.T) {
	g := core.Geometry{Width: core.Px(120), Height: core.Auto, Fill: core.With(core.AnchorTop)}
	in := core.InstructionFor(g, core.FormatPNG, 80)

	assert.Equal(t, core.ModeResize, in.Mode)
	assert.Equal(t, core.FormatPNG, in.Format)
	assert.Equal(t, 120, in.Width)
	assert.Equal(t, 0, in.Height, "auto leaves the axis free")
	assert.True(t, in.KeepAspect)
	assert.False(t, in.Crop)
	assert.True(t, in.Fill)
	assert.Equal(t, core.AnchorTop, in.FillAnchor)
	assert.Equal(t, 80, in.Quality)
}

func TestFormatFromExt(t *testing.T) {
	assert.Equal(t, core.FormatJPEG, core.FormatFromExt(".JPG"))
	assert.Equal(t, core.FormatJPEG, core.FormatFromExt("jpeg"))
	assert.Equal(t, core.FormatTIFF, core.FormatFromExt("tif"))
	assert.Equal(t, core.FormatUnknown, core.FormatFromExt("heic"))
}
