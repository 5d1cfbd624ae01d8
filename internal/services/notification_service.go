package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/bookswap/internal/models"
	pkglogger "github.com/BradenHooton/bookswap/pkg/logger"
)

// Notifier tells the parties of a swap request about its progress. Calls
// happen after the change is committed; failures are logged, never returned
// to the caller of the swap operation.
type Notifier interface {
	// SwapRequested notifies the target book's owner of a new request.
	SwapRequested(ctx context.Context, swap *models.SwapRequest, target, offered *models.Book) error
	// SwapResolved notifies the requester that their request was approved or rejected.
	SwapResolved(ctx context.Context, swap *models.SwapRequest) error
}

// SESSender is the subset of the SES client used for notifications.
type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends swap notifications through AWS SES
type SESNotifier struct {
	client      SESSender
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS configuration for region
func NewSESNotifier(region, fromAddress, baseURL string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, baseURL, logger), nil
}

func NewSESNotifierWithClient(client SESSender, fromAddress, baseURL string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{
		client:      client,
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}
}

func (n *SESNotifier) SwapRequested(ctx context.Context, swap *models.SwapRequest, target, offered *models.Book) error {
	link := fmt.Sprintf("%s/swaps/incoming", n.baseURL)
	subject := fmt.Sprintf("New swap request for %q", target.Title)

	text := fmt.Sprintf(`You have a new swap request.

%s offers %q by %s in exchange for your book %q (%s).
`, swap.RequesterEmail, offered.Title, offered.Author, target.Title, target.PublicID)
	if swap.Message != "" {
		text += fmt.Sprintf("\nMessage: %s\n", swap.Message)
	}
	text += fmt.Sprintf("\nReview the request: %s\n", link)

	return n.send(ctx, swap.OwnerEmail, subject, text, link)
}

func (n *SESNotifier) SwapResolved(ctx context.Context, swap *models.SwapRequest) error {
	link := fmt.Sprintf("%s/swaps/mine", n.baseURL)
	subject := fmt.Sprintf("Your swap request was %s", swap.Status)
	text := fmt.Sprintf(`Your swap request has been %s by the book owner.

See your requests: %s
`, swap.Status, link)

	return n.send(ctx, swap.RequesterEmail, subject, text, link)
}

func (n *SESNotifier) send(ctx context.Context, to, subject, text, link string) error {
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2>%s</h2>
    <pre style="white-space: pre-wrap; font-family: inherit;">%s</pre>
    <p><a href="%s">Open BookSwap</a></p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
</body>
</html>
`, subject, text, link)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html)},
				Text: &types.Content{Data: aws.String(text)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send notification via SES",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("notification email sent",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogNotifier records notifications in the log instead of sending them.
// Used when email is disabled.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SwapRequested(ctx context.Context, swap *models.SwapRequest, target, offered *models.Book) error {
	n.logger.Info("swap request notification",
		slog.String("swap_id", swap.ID),
		slog.String("to", pkglogger.SanitizedEmail(swap.OwnerEmail)),
		slog.String("target_book", target.PublicID),
		slog.String("offered_book", offered.PublicID))
	return nil
}

func (n *LogNotifier) SwapResolved(ctx context.Context, swap *models.SwapRequest) error {
	n.logger.Info("swap resolution notification",
		slog.String("swap_id", swap.ID),
		slog.String("to", pkglogger.SanitizedEmail(swap.RequesterEmail)),
		slog.String("status", swap.Status))
	return nil
}
