package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/utils"
)

// SeedService provisions the baseline records a fresh environment needs: the
// built-in job types plus a demo reseller, customer, funded wallet and runner.
// Every step is idempotent, so reseeding an environment is safe.
type SeedService struct {
	models           *data.Models
	dbConnectionPool db.DBConnectionPool
}

func NewSeedService(models *data.Models, dbConnectionPool db.DBConnectionPool) *SeedService {
	return &SeedService{
		models:           models,
		dbConnectionPool: dbConnectionPool,
	}
}

const (
	seedResellerAPIKey = "reseller-demo-key"
	seedCustomerAPIKey = "customer-demo-key"
	seedWalletCents    = 100_000
	seedRunnerName     = "demo-runner-1"
)

var seedJobTypes = []data.JobTypeInsert{
	{
		Name:              "echo",
		Description:       utils.StringPtr("returns the input payload unchanged"),
		ProcessorType:     data.SyncProcessorType,
		ProcessingLogicID: "builtin:echo",
		StandardCostCents: 100,
		Enabled:           true,
	},
	{
		Name:              "webhook_notify",
		Description:       utils.StringPtr("POSTs the payload to the url in the input"),
		ProcessorType:     data.WebhookProcessorType,
		ProcessingLogicID: "builtin:webhook_notify",
		StandardCostCents: 250,
		Enabled:           true,
	},
	{
		Name:              "data_transform",
		Description:       utils.StringPtr("applies the configured transformation to the payload"),
		ProcessorType:     data.AsyncProcessorType,
		ProcessingLogicID: "builtin:data_transform",
		StandardCostCents: 500,
		Enabled:           true,
	},
	{
		Name:              "report_batch",
		Description:       utils.StringPtr("aggregates the referenced records into a report"),
		ProcessorType:     data.BatchProcessorType,
		ProcessingLogicID: "builtin:report_batch",
		StandardCostCents: 1_500,
		Enabled:           true,
	},
}

func (s *SeedService) Seed(ctx context.Context) error {
	jobTypeNames, err := s.seedJobTypes(ctx)
	if err != nil {
		return err
	}

	reseller, err := s.seedReseller(ctx)
	if err != nil {
		return err
	}

	if err = s.seedCustomer(ctx, reseller.ID); err != nil {
		return err
	}

	if err = s.seedRunner(ctx, jobTypeNames); err != nil {
		return err
	}

	log.Ctx(ctx).Info("seed data is in place")
	return nil
}

func (s *SeedService) seedJobTypes(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(seedJobTypes))
	for _, insert := range seedJobTypes {
		names = append(names, insert.Name)

		_, err := s.models.JobTypes.Insert(ctx, s.dbConnectionPool, insert)
		if err != nil {
			if errors.Is(err, data.ErrRecordAlreadyExists) {
				continue
			}
			return nil, fmt.Errorf("seeding job type %s: %w", insert.Name, err)
		}
		log.Ctx(ctx).Infof("seeded job type %s", insert.Name)
	}
	return names, nil
}

func (s *SeedService) seedReseller(ctx context.Context) (*data.Reseller, error) {
	reseller, err := s.models.Resellers.GetByAPIKey(ctx, s.dbConnectionPool, seedResellerAPIKey)
	if err == nil {
		return reseller, nil
	}
	if !errors.Is(err, data.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up demo reseller: %w", err)
	}

	reseller, err = s.models.Resellers.Insert(ctx, s.dbConnectionPool, data.ResellerInsert{
		Name:           "Demo Reseller",
		Email:          "reseller@demo.local",
		APIKey:         seedResellerAPIKey,
		CommissionRate: 500,
	})
	if err != nil {
		return nil, fmt.Errorf("seeding demo reseller: %w", err)
	}
	log.Ctx(ctx).Infof("seeded reseller %s", reseller.ID)
	return reseller, nil
}

func (s *SeedService) seedCustomer(ctx context.Context, resellerID string) error {
	customer, err := s.models.Customers.GetByAPIKey(ctx, s.dbConnectionPool, seedCustomerAPIKey)
	if err == nil {
		return nil
	}
	if !errors.Is(err, data.ErrRecordNotFound) {
		return fmt.Errorf("looking up demo customer: %w", err)
	}

	customer, err = s.models.Customers.Insert(ctx, data.CustomerInsert{
		Name:       "Demo Customer",
		Email:      "customer@demo.local",
		APIKey:     utils.StringPtr(seedCustomerAPIKey),
		ResellerID: &resellerID,
	})
	if err != nil {
		return fmt.Errorf("seeding demo customer: %w", err)
	}

	wallet, err := s.models.Wallets.GetByCustomerID(ctx, s.dbConnectionPool, customer.ID)
	if err != nil {
		return fmt.Errorf("loading demo customer wallet: %w", err)
	}

	description := utils.StringPtr("seed deposit")
	_, err = db.RunInTransactionWithResult(ctx, s.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Wallet, error) {
		return s.models.Wallets.UpdateBalance(ctx, dbTx, wallet.ID, seedWalletCents, data.DepositTransactionType, description, nil)
	})
	if err != nil {
		return fmt.Errorf("funding demo customer wallet: %w", err)
	}

	log.Ctx(ctx).Infof("seeded customer %s with a %d cent balance", customer.ID, seedWalletCents)
	return nil
}

func (s *SeedService) seedRunner(ctx context.Context, jobTypeNames []string) error {
	runners, err := s.models.Runners.GetAll(ctx, s.dbConnectionPool)
	if err != nil {
		return fmt.Errorf("listing runners: %w", err)
	}
	for _, runner := range runners {
		if runner.Name == seedRunnerName {
			return nil
		}
	}

	runner, err := s.models.Runners.Insert(ctx, data.RunnerInsert{
		Name:               seedRunnerName,
		Description:        utils.StringPtr("seeded runner compatible with every built-in job type"),
		CompatibleJobTypes: jobTypeNames,
	})
	if err != nil {
		return fmt.Errorf("seeding demo runner: %w", err)
	}

	if err = s.models.Runners.Heartbeat(ctx, s.dbConnectionPool, runner.ID); err != nil {
		return fmt.Errorf("recording initial heartbeat for runner %s: %w", runner.ID, err)
	}

	log.Ctx(ctx).Infof("seeded runner %s", runner.ID)
	return nil
}
