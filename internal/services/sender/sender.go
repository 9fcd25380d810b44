package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"strings"

	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/smtp"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
	"github.com/magabrotheeeer/drivemetrics/internal/storage/repository"
)

// SenderService отправляет письма об истёкшем доступе.
type SenderService struct {
	transport   smtp.TransportInterface
	frontendURL string
	log         *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, frontendURL string, log *slog.Logger) *SenderService {
	return &SenderService{
		transport:   transport,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		log:         log,
	}
}

// SendAccessExpired обрабатывает сообщение очереди notification.expired.
// Подходит как rabbitmq.Handler.
func (s *SenderService) SendAccessExpired(_ context.Context, body []byte) error {
	const op = "services.sender.SendAccessExpired"

	var message models.ExpiredUser
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: error unmarshalling message: %w", op, err)
	}
	if message.Email == "" {
		s.log.Warn("expired notice without email", sl.UserID(message.ID))
		return nil
	}

	subject, text := s.expiredNotice(message)
	if err := s.sendEmail([]string{message.Email}, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SenderService) expiredNotice(m models.ExpiredUser) (subject, text string) {
	plansURL := s.frontendURL + "/planes"
	if m.Reason == repository.ReasonTrialEnded {
		return "Tu prueba gratuita de DriveMetrics terminó",
			fmt.Sprintf("Hola,\r\n\r\nTu período de prueba de DriveMetrics finalizó y el acceso a las métricas premium quedó suspendido.\r\n"+
				"Podés suscribirte en cualquier momento desde %s para seguir usando el servicio.\r\n\r\nEl equipo de DriveMetrics", plansURL)
	}
	return "Tu suscripción a DriveMetrics venció",
		fmt.Sprintf("Hola,\r\n\r\nTu suscripción a DriveMetrics Premium venció y el acceso a las métricas premium quedó suspendido.\r\n"+
			"Renová tu plan desde %s para recuperar el acceso.\r\n\r\nEl equipo de DriveMetrics", plansURL)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.From()
	envelopeFrom := from
	if addr, err := mail.ParseAddress(from); err == nil {
		envelopeFrom = addr.Address
	}

	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + mimeSubject(subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"Content-Transfer-Encoding: 8bit",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(envelopeFrom); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", envelopeFrom), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}

// mimeSubject кодирует тему с не-ASCII символами по RFC 2047.
func mimeSubject(subject string) string {
	return mime.QEncoding.Encode("UTF-8", subject)
}
