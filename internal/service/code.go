package service

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	fulfillmentCodeLength   = 8
	fulfillmentCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Bytes at or above this bound are discarded so every symbol is equally likely.
	fulfillmentCodeByteLimit = 256 - 256%len(fulfillmentCodeAlphabet)
)

type codeGenerator struct {
	src io.Reader
}

// NewCodeGenerator returns a generator of 8-character [A-Z0-9] codes drawn
// from src. A nil src uses crypto/rand.
func NewCodeGenerator(src io.Reader) CodeGenerator {
	if src == nil {
		src = rand.Reader
	}
	return &codeGenerator{src: src}
}

func (g *codeGenerator) Generate() (string, error) {
	code := make([]byte, 0, fulfillmentCodeLength)
	buf := make([]byte, fulfillmentCodeLength*2)
	for len(code) < fulfillmentCodeLength {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= fulfillmentCodeByteLimit {
				continue
			}
			code = append(code, fulfillmentCodeAlphabet[int(b)%len(fulfillmentCodeAlphabet)])
			if len(code) == fulfillmentCodeLength {
				break
			}
		}
	}
	return string(code), nil
}
