package app

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"vorpal/internal/shared"
)

func (s Service) GenerateKeys(ctx context.Context, req KeysGenerateRequest) (KeysGenerateResult, error) {
	privatePath := strings.TrimSpace(req.PrivatePath)
	publicPath := strings.TrimSpace(req.PublicPath)
	if privatePath == "" || publicPath == "" {
		return KeysGenerateResult{}, shared.Fail(shared.KindIO, shared.StageConfig, "private and public key paths are required", nil)
	}
	if err := s.KeyGen.Generate(privatePath, publicPath, req.Recipients); err != nil {
		return KeysGenerateResult{}, err
	}
	log.Ctx(ctx).Debug().
		Str("private", privatePath).
		Str("public", publicPath).
		Bool("encrypted", len(req.Recipients) > 0).
		Msg("signing keys generated")
	return KeysGenerateResult{PrivatePath: privatePath, PublicPath: publicPath}, nil
}
