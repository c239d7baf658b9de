package submitter

import (
	"context"
	"encoding/hex"

	"github.com/rs/zerolog/log"

	"github.com/dvm-project/dvmkit/pkg/models"
	"github.com/dvm-project/dvmkit/pkg/sealer"
)

// BuildRequestParams describe one outbound job request.
type BuildRequestParams struct {
	SubmitterKey string
	// Prompt is the plain job input.
	Prompt string
	// TargetProcessor optionally routes the job to one processor identity.
	TargetProcessor string
	// PayloadKind defaults to text generation.
	PayloadKind int
}

// BuildRequest produces the unsigned JobRequest payload. When a valid target
// identity is supplied the input is sealed to it and the identity recorded as
// a routing tag. When it is absent or malformed the request goes out in the
// clear with no routing tag: the tag is a delivery hint on a public network,
// not access control, and inventing a placeholder identity to fill it would
// ship garbage into every downstream encryption and auth check.
func BuildRequest(ctx context.Context, params BuildRequestParams, seal sealer.Sealer) (models.JobRequest, error) {
	if params.PayloadKind == 0 {
		params.PayloadKind = models.KindJobRequestTextGeneration
	}

	request := models.JobRequest{
		SubmitterKey: params.SubmitterKey,
		PayloadKind:  params.PayloadKind,
		Input:        params.Prompt,
	}

	if params.TargetProcessor == "" {
		return request, nil
	}
	if !IsValidIdentity(params.TargetProcessor) {
		log.Ctx(ctx).Warn().
			Str("target", params.TargetProcessor).
			Msg("target processor identity is malformed, publishing request in the clear")
		return request, nil
	}

	sealed, err := seal.Encrypt(params.Prompt, params.TargetProcessor)
	if err != nil {
		return models.JobRequest{}, err
	}
	request.ProcessorKeyHint = params.TargetProcessor
	request.Input = sealed
	request.Encrypted = true
	return request, nil
}

// IsValidIdentity reports whether the string is a plausible identity key:
// 32 bytes of hex.
func IsValidIdentity(key string) bool {
	if len(key) != 64 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}
