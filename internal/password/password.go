// Package password はパスワードのハッシュ化と検証を提供します。
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordTooLong は bcrypt が扱える 72 バイトを超えた場合に返されます。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

const maxPasswordBytes = 72

// Hasher は bcrypt によるソルト付きハッシュを扱います。
// ダイジェストにはソルトとコストが埋め込まれるため、ソルトを別途保存する必要はありません。
type Hasher struct {
	cost int
}

// NewHasher は Hasher を作成します。範囲外のコストは bcrypt の下限/上限に丸めます。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash は呼び出しごとに新しいソルトでダイジェストを生成します。
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify はダイジェストに埋め込まれたソルトで再計算し、定数時間で比較します。
func (h *Hasher) Verify(plaintext, digest string) bool {
	if digest == "" || len(plaintext) > maxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
