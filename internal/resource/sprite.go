package resource

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

type spriteBitmap struct {
	FrameID         ID       `json:"FrameId"`
	LayerID         *ID      `json:"LayerId"`
	ResourceVersion string   `json:"resourceVersion"`
	Name            string   `json:"name"`
	Tags            []string `json:"tags"`
	ResourceType    string   `json:"resourceType"`
}

type spriteFrame struct {
	CompositeImage  spriteBitmap   `json:"compositeImage"`
	Images          []spriteBitmap `json:"images"`
	Parent          ID             `json:"parent"`
	ResourceVersion string         `json:"resourceVersion"`
	Name            string         `json:"name"`
	Tags            []string       `json:"tags"`
	ResourceType    string         `json:"resourceType"`
}

type spriteLayer struct {
	Visible         bool     `json:"visible"`
	IsLocked        bool     `json:"isLocked"`
	BlendMode       int      `json:"blendMode"`
	Opacity         float64  `json:"opacity"`
	DisplayName     string   `json:"displayName"`
	ResourceVersion string   `json:"resourceVersion"`
	Name            string   `json:"name"`
	Tags            []string `json:"tags"`
	ResourceType    string   `json:"resourceType"`
}

type spriteSequence struct {
	SpriteID        ID       `json:"spriteId"`
	TimeUnits       int      `json:"timeUnits"`
	Playback        int      `json:"playback"`
	PlaybackSpeed   float64  `json:"playbackSpeed"`
	PlaybackSpeedT  int      `json:"playbackSpeedType"`
	AutoRecord      bool     `json:"autoRecord"`
	Volume          float64  `json:"volume"`
	Length          float64  `json:"length"`
	Tracks          []any    `json:"tracks"`
	Parent          ID       `json:"parent"`
	ResourceVersion string   `json:"resourceVersion"`
	Name            string   `json:"name"`
	Tags            []string `json:"tags"`
	ResourceType    string   `json:"resourceType"`
}

type spriteYY struct {
	BBoxMode           int            `json:"bboxMode"`
	CollisionKind      int            `json:"collisionKind"`
	Type               int            `json:"type"`
	Origin             int            `json:"origin"`
	PreMultiplyAlpha   bool           `json:"preMultiplyAlpha"`
	EdgeFiltering      bool           `json:"edgeFiltering"`
	CollisionTolerance int            `json:"collisionTolerance"`
	SWFPrecision       float64        `json:"swfPrecision"`
	BBoxLeft           int            `json:"bbox_left"`
	BBoxRight          int            `json:"bbox_right"`
	BBoxTop            int            `json:"bbox_top"`
	BBoxBottom         int            `json:"bbox_bottom"`
	HTile              bool           `json:"HTile"`
	VTile              bool           `json:"VTile"`
	For3D              bool           `json:"For3D"`
	Width              int            `json:"width"`
	Height             int            `json:"height"`
	TextureGroupID     ID             `json:"textureGroupId"`
	SwatchColours      []int          `json:"swatchColours"`
	GridX              int            `json:"gridX"`
	GridY              int            `json:"gridY"`
	Frames             []spriteFrame  `json:"frames"`
	Sequence           spriteSequence `json:"sequence"`
	Layers             []spriteLayer  `json:"layers"`
	Parent             ID             `json:"parent"`
	ResourceVersion    string         `json:"resourceVersion"`
	Name               string         `json:"name"`
	Tags               []string       `json:"tags"`
	ResourceType       string         `json:"resourceType"`
}

// Sprite is an image resource. Only the first frame of the first layer is
// managed here; additional frames are preserved as they are.
type Sprite struct {
	*Base
}

func IsImageFile(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".png")
}

func CreateSprite(name, src string, ctx *Context, order int) (*Sprite, error) {
	if err := checkSource(ctx, name, src, IsImageFile); err != nil {
		return nil, err
	}
	img, width, height, err := readImage(ctx, name, src)
	if err != nil {
		return nil, err
	}
	id := NewID(KindSprite, name)
	frameID, layerID := uuid.NewString(), uuid.NewString()
	bitmap := func(layer *ID) spriteBitmap {
		return spriteBitmap{
			FrameID:         ID{Name: frameID, Path: id.Path},
			LayerID:         layer,
			ResourceVersion: "1.0",
			Tags:            []string{},
			ResourceType:    "GMSpriteBitmap",
		}
	}
	yy, err := marshalYY(spriteYY{
		CollisionKind:  1,
		SWFPrecision:   2.525,
		BBoxRight:      width - 1,
		BBoxBottom:     height - 1,
		Width:          width,
		Height:         height,
		TextureGroupID: ID{Name: "Default", Path: "texturegroups/Default"},
		Frames: []spriteFrame{{
			CompositeImage:  bitmap(nil),
			Images:          []spriteBitmap{bitmap(&ID{Name: layerID, Path: id.Path})},
			Parent:          id,
			ResourceVersion: "1.0",
			Name:            frameID,
			Tags:            []string{},
			ResourceType:    "GMSpriteFrame",
		}},
		Sequence: spriteSequence{
			SpriteID:        id,
			TimeUnits:       1,
			Playback:        1,
			PlaybackSpeed:   30,
			AutoRecord:      true,
			Volume:          1,
			Length:          1,
			Tracks:          []any{},
			Parent:          id,
			ResourceVersion: "1.3",
			Name:            name,
			Tags:            []string{},
			ResourceType:    "GMSequence",
		},
		Layers: []spriteLayer{{
			Visible:         true,
			Opacity:         100,
			DisplayName:     "default",
			ResourceVersion: "1.0",
			Name:            layerID,
			Tags:            []string{},
			ResourceType:    "GMImageLayer",
		}},
		Parent:          FolderRef(DefaultFolder),
		ResourceVersion: "1.0",
		Name:            name,
		Tags:            []string{},
		ResourceType:    KindSprite.ResourceType(),
	})
	if err != nil {
		return nil, err
	}
	s := &Sprite{Base: newBase(ctx, KindSprite, name, yy, order)}
	if err := s.writeFrame(img, frameID, layerID); err != nil {
		_ = ctx.storage.RemoveAll(s.Dir())
		return nil, err
	}
	if err := ctx.storage.WriteJSON(s.YYPath(), yy); err != nil {
		_ = ctx.storage.RemoveAll(s.Dir())
		return nil, fmt.Errorf("create sprite %s: %w", name, err)
	}
	ctx.logger.Info("created sprite", "name", name, "source", src)
	return s, nil
}

func (s *Sprite) Width() int {
	return int(s.Field("width").Int())
}

func (s *Sprite) Height() int {
	return int(s.Field("height").Int())
}

func (s *Sprite) FrameIDs() []string {
	var ids []string
	for _, f := range s.Field("frames").Array() {
		ids = append(ids, f.Get("name").String())
	}
	return ids
}

func (s *Sprite) LayerIDs() []string {
	var ids []string
	for _, l := range s.Field("layers").Array() {
		ids = append(ids, l.Get("name").String())
	}
	return ids
}

// ReplaceImageFile swaps the image of the sprite's first frame for the PNG at
// src and updates the stored dimensions.
func (s *Sprite) ReplaceImageFile(src string) error {
	if err := checkSource(s.ctx, s.Name(), src, IsImageFile); err != nil {
		return err
	}
	frames, layers := s.FrameIDs(), s.LayerIDs()
	if len(frames) == 0 || len(layers) == 0 {
		return pipelineErrorf(InvalidUpsertTarget, s.Name(), "sprite has no frame to replace")
	}
	if len(frames) > 1 {
		s.ctx.logger.Warn("only the first frame is replaced", "sprite", s.Name(), "frames", len(frames))
	}
	img, width, height, err := readImage(s.ctx, s.Name(), src)
	if err != nil {
		return err
	}
	updated := s.Data()
	for field, value := range map[string]int{
		"width":       width,
		"height":      height,
		"bbox_right":  width - 1,
		"bbox_bottom": height - 1,
	} {
		if updated, err = sjson.SetBytes(updated, field, value); err != nil {
			return fmt.Errorf("replace image of %s: %w", s.Name(), err)
		}
	}
	previous, _ := s.ctx.storage.ReadBinary(s.framePath(frames[0]))
	if err := s.writeFrame(img, frames[0], layers[0]); err != nil {
		return err
	}
	if err := s.patch(func([]byte) ([]byte, error) { return updated, nil }); err != nil {
		if previous != nil {
			if err := s.writeFrame(previous, frames[0], layers[0]); err != nil {
				s.ctx.logger.Warn("could not restore previous frame", "sprite", s.Name(), "frame", frames[0], "err", err)
			}
		}
		return err
	}
	s.ctx.logger.Info("replaced sprite", "name", s.Name(), "source", src)
	return nil
}

func (s *Sprite) framePath(frameID string) string {
	return filepath.Join(s.Dir(), frameID+".png")
}

func (s *Sprite) writeFrame(img []byte, frameID, layerID string) error {
	if err := s.ctx.storage.WriteBinary(s.framePath(frameID), img); err != nil {
		return fmt.Errorf("write frame of %s: %w", s.Name(), err)
	}
	layerPath := filepath.Join(s.Dir(), "layers", frameID, layerID+".png")
	if err := s.ctx.storage.WriteBinary(layerPath, img); err != nil {
		return fmt.Errorf("write frame of %s: %w", s.Name(), err)
	}
	return nil
}

func readImage(ctx *Context, name, src string) ([]byte, int, int, error) {
	img, err := ctx.storage.ReadBinary(src)
	if err != nil {
		return nil, 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, 0, 0, &PipelineError{Kind: InvalidUpsertTarget, Resource: name, Msg: "source is not a readable png", Err: err}
	}
	return img, cfg.Width, cfg.Height, nil
}
