package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/mailer"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppName+"-order-worker", cfg.Env)

	if cfg.RabbitMQURL == "" || cfg.OrderEventsQueue == "" {
		logger.Fatal("RabbitMQ not configured")
	}

	var sender mailer.Sender
	if cfg.MailSendEnabled {
		if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.MailgunSender == "" {
			logger.Fatal("Mailgun not configured")
		}
		sender = mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
	} else {
		logger.Warn("MAIL_SEND_ENABLED=false; confirmations are logged, not sent")
		sender = mailer.LogSender{Logf: logger.Infof}
	}
	handler := mailer.NewOrderMailer(sender, cfg.AppName, logger)

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.WithError(err).Fatal("amqp dial")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		logger.WithError(err).Fatal("amqp channel")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(16, 0, false); err != nil {
		logger.WithError(err).Fatal("qos")
	}
	if _, err := events.DeclareQueue(ch, cfg.OrderEventsQueue); err != nil {
		logger.WithError(err).Fatal("queue declare")
	}

	msgs, err := ch.Consume(cfg.OrderEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.WithError(err).Fatal("consume")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for msg := range msgs {
			c, cancelMsg := context.WithTimeout(ctx, 15*time.Second)
			err := handler.Handle(c, msg.Body)
			cancelMsg()

			switch {
			case err == nil:
				_ = msg.Ack(false)
			case errors.Is(err, mailer.ErrBadPayload):
				logger.WithError(err).WithField("messageId", msg.MessageId).Warn("dropping message")
				_ = msg.Nack(false, false)
			default:
				logger.WithError(err).WithField("messageId", msg.MessageId).Error("send failed, requeueing")
				_ = msg.Nack(false, true)
			}
		}
	}()

	logger.Infof("order worker listening on queue=%s", cfg.OrderEventsQueue)
	<-stop
	logger.Info("shutting down...")
	cancel()
	_ = ch.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}
