// Package auth 签发与校验访问令牌
//
// 令牌为 HS256 签名的 JWT，sub 为用户名，exp 必填。
package auth

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/tokmz/qim/internal/store"
	"github.com/tokmz/qim/pkg/errors"
	"github.com/tokmz/qim/pkg/logger"
	"github.com/tokmz/qim/pkg/ws"
)

const bearerPrefix = "Bearer "

// Config 令牌配置
type Config struct {
	Secret string
	// Issuer 非空时签发写入 iss，校验要求一致
	Issuer string
	TTL    time.Duration
}

// Claims 令牌声明
type Claims struct {
	Authorities []string `json:"authorities,omitempty"`
	jwt.RegisteredClaims
}

// Verifier 校验令牌并解析出用户身份
type Verifier struct {
	secret []byte
	issuer string
	users  store.UserStore
	log    logger.Logger
	parser *jwt.Parser
}

var _ ws.Authenticator = (*Verifier)(nil)

// NewVerifier 创建校验器
func NewVerifier(cfg Config, users store.UserStore, log logger.Logger) *Verifier {
	if log == nil {
		log = logger.NewNop()
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		users:  users,
		log:    log,
		parser: jwt.NewParser(opts...),
	}
}

// StripBearer 去掉 "Bearer " 前缀，前缀大小写不敏感
func StripBearer(credential string) string {
	credential = strings.TrimSpace(credential)
	if len(credential) >= len(bearerPrefix) && strings.EqualFold(credential[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(credential[len(bearerPrefix):])
	}
	return credential
}

// Parse 只校验令牌本身，返回声明
func (v *Verifier) Parse(credential string) (*Claims, error) {
	raw := StripBearer(credential)
	if raw == "" {
		return nil, ErrInvalidCredential.WithMessage("令牌为空")
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case stderrors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrInvalidCredential.WithMessage("令牌已过期").WithError(err)
		case stderrors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, ErrInvalidCredential.WithMessage("令牌缺少过期时间").WithError(err)
		default:
			return nil, ErrInvalidCredential.WithError(err)
		}
	}
	if claims.Subject == "" {
		return nil, ErrInvalidCredential.WithMessage("令牌缺少主体")
	}
	return claims, nil
}

// Verify 校验令牌并按 sub 查找用户
// sub 含 "@" 且按用户名找不到时按邮箱再查一次
func (v *Verifier) Verify(ctx context.Context, credential string) (*ws.Principal, error) {
	claims, err := v.Parse(credential)
	if err != nil {
		return nil, err
	}

	user, err := v.resolve(ctx, claims.Subject)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownSubject.WithError(err)
		}
		// 存储故障不是主体不存在，按服务端错误上报
		v.log.ErrorContext(ctx, "resolve token subject failed", zap.String("subject", claims.Subject), zap.Error(err))
		return nil, errors.ErrServer.WithError(err)
	}

	authorities := user.Authorities
	if len(authorities) == 0 {
		authorities = claims.Authorities
	}
	return &ws.Principal{
		UserID:      user.ID,
		Username:    user.Username,
		Authorities: append([]string(nil), authorities...),
	}, nil
}

func (v *Verifier) resolve(ctx context.Context, subject string) (*store.User, error) {
	user, err := v.users.FindUserByUsername(ctx, subject)
	if err == nil || !strings.Contains(subject, "@") || !stderrors.Is(err, store.ErrNotFound) {
		return user, err
	}
	return v.users.FindUserByEmail(ctx, subject)
}

// Issuer 签发令牌
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer 创建签发器
func NewIssuer(cfg Config) *Issuer {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}
}

// Issue 为用户签发令牌，sub 为用户名
func (i *Issuer) Issue(u *store.User) (string, error) {
	now := i.now()
	claims := Claims{
		Authorities: u.Authorities,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", ErrInvalidCredential.WithError(err)
	}
	return token, nil
}
