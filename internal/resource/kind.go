package resource

import "strings"

type Kind int

const (
	KindUnknown Kind = iota
	KindAnimCurve
	KindExtension
	KindFont
	KindNote
	KindObject
	KindPath
	KindRoom
	KindScript
	KindSequence
	KindShader
	KindSound
	KindSprite
	KindTileSet
	KindTimeline
)

var kindDirs = map[Kind]string{
	KindAnimCurve: "animcurves",
	KindExtension: "extensions",
	KindFont:      "fonts",
	KindNote:      "notes",
	KindObject:    "objects",
	KindPath:      "paths",
	KindRoom:      "rooms",
	KindScript:    "scripts",
	KindSequence:  "sequences",
	KindShader:    "shaders",
	KindSound:     "sounds",
	KindSprite:    "sprites",
	KindTileSet:   "tilesets",
	KindTimeline:  "timelines",
}

var kindResourceTypes = map[Kind]string{
	KindAnimCurve: "GMAnimCurve",
	KindExtension: "GMExtension",
	KindFont:      "GMFont",
	KindNote:      "GMNotes",
	KindObject:    "GMObject",
	KindPath:      "GMPath",
	KindRoom:      "GMRoom",
	KindScript:    "GMScript",
	KindSequence:  "GMSequence",
	KindShader:    "GMShader",
	KindSound:     "GMSound",
	KindSprite:    "GMSprite",
	KindTileSet:   "GMTileSet",
	KindTimeline:  "GMTimeline",
}

// Dir is the project subdirectory holding resources of this kind.
func (k Kind) Dir() string {
	return kindDirs[k]
}

func (k Kind) ResourceType() string {
	return kindResourceTypes[k]
}

func (k Kind) String() string {
	if d, ok := kindDirs[k]; ok {
		return d
	}
	return "unknown"
}

// ParseKind accepts a kind directory name ("sounds"), its singular form
// ("sound") or the resourceType tag ("GMSound").
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, dir := range kindDirs {
		if s == dir || s+"s" == dir || s == strings.ToLower(kindResourceTypes[k]) {
			return k, true
		}
	}
	return KindUnknown, false
}

func Kinds() []Kind {
	return []Kind{
		KindAnimCurve, KindExtension, KindFont, KindNote, KindObject, KindPath,
		KindRoom, KindScript, KindSequence, KindShader, KindSound, KindSprite,
		KindTileSet, KindTimeline,
	}
}
