package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/hellowallet/internal/cache"
	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
	tokens "github.com/dropDatabas3/hellowallet/internal/security/token"
	mail "github.com/go-mail/mail"
)

// SMTPProvider implementa Provider entregando el OTP por email propio.
// La correlación challenge->código vive en el cache con TTL; el proof es un
// HMAC sobre (handle, contacto) con una clave compartida con el signer remoto,
// así el signer puede verificar la procedencia sin confiar ciegamente en este
// servicio.
type SMTPProvider struct {
	Sender     Sender
	Cache      cache.Client
	TTL        time.Duration
	HMACKey    []byte
	CodeDigits int
}

// Sender abstrae el envío de un email ya renderizado.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// NewSMTPProvider arma el provider con defaults sanos.
func NewSMTPProvider(sender Sender, c cache.Client, ttl time.Duration, hmacKey []byte) *SMTPProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SMTPProvider{Sender: sender, Cache: c, TTL: ttl, HMACKey: hmacKey, CodeDigits: 6}
}

func (p *SMTPProvider) challengeKey(handle string) string { return "challenge:" + handle }

// SendChallenge genera el código, lo guarda hasheado y lo envía por email.
func (p *SMTPProvider) SendChallenge(ctx context.Context, contact string) (string, error) {
	log := logger.From(ctx).With(
		logger.Component("provider.smtp"),
		logger.Op("SendChallenge"),
		logger.Email(contact),
	)

	code, err := tokens.NumericCode(p.CodeDigits)
	if err != nil {
		return "", err
	}
	handle := uuid.NewString()

	// Guardamos hash(código)|contacto, nunca el código en claro.
	val := tokens.SHA256Base64URL(code) + "|" + contact
	if err := p.Cache.Set(ctx, p.challengeKey(handle), val, p.TTL); err != nil {
		return "", fmt.Errorf("provider: store challenge: %w", err)
	}

	subject := "Tu código de acceso"
	text := fmt.Sprintf("Tu código de verificación es: %s\nExpira en %d minutos.", code, int(p.TTL.Minutes()))
	html := fmt.Sprintf("<p>Tu código de verificación es: <b>%s</b></p><p>Expira en %d minutos.</p>", code, int(p.TTL.Minutes()))
	if err := p.Sender.Send(contact, subject, html, text); err != nil {
		_ = p.Cache.Delete(ctx, p.challengeKey(handle))
		log.Error("challenge delivery failed", logger.Err(err))
		return "", fmt.Errorf("provider: send challenge: %w", err)
	}

	log.Info("challenge sent", logger.ChallengeID(handle))
	return handle, nil
}

// VerifyChallenge compara el código y emite el proof. Consume el challenge
// tanto en éxito como en mismatch: un código errado quema el challenge.
func (p *SMTPProvider) VerifyChallenge(ctx context.Context, handle, code string) (string, error) {
	val, err := p.Cache.Get(ctx, p.challengeKey(handle))
	if err != nil {
		if cache.IsNotFound(err) {
			return "", ErrInvalidOrExpiredCode
		}
		return "", fmt.Errorf("provider: load challenge: %w", err)
	}
	_ = p.Cache.Delete(ctx, p.challengeKey(handle))

	parts := strings.SplitN(val, "|", 2)
	if len(parts) != 2 {
		return "", ErrInvalidOrExpiredCode
	}
	wantHash, contact := parts[0], parts[1]

	gotHash := tokens.SHA256Base64URL(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(gotHash), []byte(wantHash)) != 1 {
		return "", ErrInvalidOrExpiredCode
	}

	return p.proof(handle, contact), nil
}

// proof = base64url(hmac-sha256(key, handle|contact)) con el contacto adelante
// para que el verificador remoto pueda recomputarlo.
func (p *SMTPProvider) proof(handle, contact string) string {
	mac := hmac.New(sha256.New, p.HMACKey)
	mac.Write([]byte(handle + "|" + contact))
	return contact + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SMTPSender implementa Sender usando go-mail.
type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// Send envía un email con contenido HTML y texto plano.
func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	// multipart/alternative (txt + html)
	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify, // solo dev
	}
	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.InsecureSkipVerify}
	default:
		// "auto"/"starttls": go-mail negocia STARTTLS si corresponde
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
