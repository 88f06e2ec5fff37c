package server

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"

	"party-rounds/internal/game"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	gameCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	gameCodeLength   = 6
)

var validatorOnce sync.Once

func registerValidators() {
	validatorOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
			_, err := game.CleanNickname(fl.Field().String())
			return err == nil
		})
		_ = engine.RegisterValidation("gametype", func(fl validator.FieldLevel) bool {
			return game.Type(fl.Field().String()).Valid()
		})
		_ = engine.RegisterValidation("gamecode", func(fl validator.FieldLevel) bool {
			return isGameCode(normalizeCode(fl.Field().String()))
		})
	})
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func isGameCode(code string) bool {
	if len(code) != gameCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(gameCodeAlphabet, r) {
			return false
		}
	}
	return true
}

func newGameCode() (string, error) {
	limit := big.NewInt(int64(len(gameCodeAlphabet)))
	buf := make([]byte, gameCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = gameCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
