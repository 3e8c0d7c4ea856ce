package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"qrpay-intent-api/internal/cache"
	"qrpay-intent-api/internal/config"
	"qrpay-intent-api/internal/dal"
	"qrpay-intent-api/internal/handler"
	"qrpay-intent-api/internal/idgen"
	"qrpay-intent-api/internal/logger"
	"qrpay-intent-api/internal/middleware"
	"qrpay-intent-api/internal/mq"
	"qrpay-intent-api/internal/provider"
	"qrpay-intent-api/internal/service"
)

func main() {
	// load config env
	config.Init()

	// init infra
	dal.InitDB()
	dal.InitRedis()
	dal.InitRabbitMQ()

	// idgen
	if err := idgen.Init(1); err != nil {
		log.Fatal(err)
	}

	// provider from injected config
	pc := config.C.Provider
	prov := provider.NewBankTransferProvider(provider.BankTransferConfig{
		BankCode:       pc.BankCode,
		AccountNumber:  pc.AccountNumber,
		AccountName:    pc.AccountName,
		ApiKey:         pc.ApiKey,
		ApiUrl:         pc.ApiUrl,
		TransferPrefix: pc.TransferPrefix,
		Timeout:        time.Duration(pc.TimeoutSec) * time.Second,
	})

	tolerance, err := decimal.NewFromString(config.C.Payment.AmountTolerance)
	if err != nil {
		log.Fatalf("invalid amount tolerance: %v", err)
	}
	svc := service.NewPaymentService(
		dal.DB,
		prov,
		cache.NewRedisStatusCache(dal.RedisClient),
		mq.NewPublisher(),
		service.PaymentServiceOpts{
			IntentTTL:       time.Duration(config.C.Payment.IntentExpireMin) * time.Minute,
			CacheTTL:        time.Duration(config.C.Payment.CacheTTLSec) * time.Second,
			AmountTolerance: tolerance,
			Log:             logger.NewLogger("payment"),
		},
	)

	// http server
	if config.C.Server.Mode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.SetTrustedProxies([]string{"127.0.0.1", "192.168.0.0/16"})
	r.Use(middleware.Recover(), middleware.RequestLogger())

	ph := handler.NewPaymentHandler(svc)
	wh := handler.NewWebhookHandler(svc)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/payments", ph.Create)
		v1.GET("/payments/:id", ph.Get)
		v1.POST("/webhooks/bank-transfer", wh.HandleBankTransfer)
	}

	addr := ":" + config.C.Server.Port
	log.Printf("listening %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatal(err)
	}
}
