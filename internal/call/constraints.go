package call

import "github.com/peercall/peercall/internal/media"

// Mandatory constraint keys used for offer negotiation hints.
const (
	keyReceiveAudio = "OfferToReceiveAudio"
	keyReceiveVideo = "OfferToReceiveVideo"
)

// mergeConstraints folds b into a: every key in b's mandatory map
// overwrites or augments the corresponding key in a's. Entries in b's
// optional list are not carried into the result; optional entries are
// best-effort hints with no defined merge precedence, so only the base
// set's survive.
func mergeConstraints(a, b media.Constraints) media.Constraints {
	if a.Mandatory == nil {
		a.Mandatory = make(map[string]any)
	}
	for k, v := range b.Mandatory {
		a.Mandatory[k] = v
	}
	return a
}

// captureConstraints translates the config's shape hints into the
// mandatory constraint map the media gateway understands.
func captureConstraints(cfg *Config) media.Constraints {
	m := make(map[string]any)
	if cfg.VideoWidth > 0 {
		m[media.KeyMaxWidth] = cfg.VideoWidth
	}
	if cfg.VideoHeight > 0 {
		m[media.KeyMaxHeight] = cfg.VideoHeight
	}
	if cfg.VideoFrameRate > 0 {
		m[media.KeyMaxFrameRate] = cfg.VideoFrameRate
	}
	m[media.KeyAudio] = cfg.EnableAudio
	return media.Constraints{Mandatory: m}
}
