package gitlab

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// opaqueContext is the correlation context carried end-to-end through the
// broker inside the opaque token of a job. Workers never look inside it.
type opaqueContext struct {
	Hook    PushEvent `json:"hook"`
	ZipPath string    `json:"zip"`
}

// ToOpaque encodes a push event and the path of its artifact into an opaque
// string that survives arbitrary string transport.
func ToOpaque(hook PushEvent, zipPath string) (string, error) {
	data, err := json.Marshal(opaqueContext{Hook: hook, ZipPath: zipPath})
	if err != nil {
		return "", fmt.Errorf("encoding opaque token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// FromOpaque decodes a token produced by ToOpaque. A token that did not come
// from ToOpaque is a hard error, never a partial result.
func FromOpaque(opaque string) (PushEvent, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(opaque)
	if err != nil {
		return PushEvent{}, "", fmt.Errorf("decoding opaque token: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var ctx opaqueContext
	if err := dec.Decode(&ctx); err != nil {
		return PushEvent{}, "", fmt.Errorf("decoding opaque token: %w", err)
	}
	if ctx.Hook.ObjectKind == "" || ctx.ZipPath == "" {
		return PushEvent{}, "", fmt.Errorf("opaque token is missing its context")
	}
	return ctx.Hook, ctx.ZipPath, nil
}
