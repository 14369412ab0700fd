package service

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrAdminDisabled 在未配置管理员凭据时返回
	ErrAdminDisabled = errors.New("admin login disabled")
	// ErrAdminInvalidCredentials 在用户名或密码错误时返回
	ErrAdminInvalidCredentials = errors.New("invalid admin credentials")
)

// AdminAuth 校验后台登录凭据，只在内存中保留 bcrypt 哈希。
type AdminAuth struct {
	username string
	hash     []byte
}

// NewAdminAuth 根据配置构造 AdminAuth。
// passwordHash 非空时直接使用，否则对 password 做 bcrypt；二者都为空时后台登录被禁用。
func NewAdminAuth(username, password, passwordHash string) (*AdminAuth, error) {
	auth := &AdminAuth{username: strings.TrimSpace(username)}
	if auth.username == "" {
		return auth, nil
	}

	if hash := strings.TrimSpace(passwordHash); hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, err
		}
		auth.hash = []byte(hash)
		return auth, nil
	}

	if password == "" {
		return auth, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	auth.hash = hash
	return auth, nil
}

// Enabled 表示是否配置了可用的管理员凭据。
func (a *AdminAuth) Enabled() bool {
	return a != nil && a.username != "" && len(a.hash) > 0
}

// Username 返回管理员用户名。
func (a *AdminAuth) Username() string {
	if a == nil {
		return ""
	}
	return a.username
}

// Verify 校验用户名与密码。
func (a *AdminAuth) Verify(username, password string) error {
	if !a.Enabled() {
		return ErrAdminDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !userOK || passErr != nil {
		return ErrAdminInvalidCredentials
	}
	return nil
}
