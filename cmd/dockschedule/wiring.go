package main

import (
	"fmt"

	"github.com/cuemby/dockschedule/pkg/broker"
	"github.com/cuemby/dockschedule/pkg/config"
	"github.com/cuemby/dockschedule/pkg/log"
	"github.com/cuemby/dockschedule/pkg/security"
	"github.com/cuemby/dockschedule/pkg/storage"
)

// loadConfig reads the --config file if one was given, otherwise falls
// back to config.Default().
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// wiring holds everything a scheduler or worker process needs to build
// its own store and broker connections, loaded once at startup.
type wiring struct {
	cfg      *config.Config
	material *security.Material
	brokerCr *config.BrokerCredentials
	storeCr  *config.StoreCredentials
}

func newWiring(cfg *config.Config) (*wiring, error) {
	material, err := security.LoadMaterial(cfg.Secrets.TLSDir)
	if err != nil {
		return nil, fmt.Errorf("load TLS material: %w", err)
	}

	brokerCr, err := config.LoadBrokerCredentials(cfg.Secrets.BrokerDir)
	if err != nil {
		return nil, fmt.Errorf("load broker credentials: %w", err)
	}

	storeCr, err := config.LoadStoreCredentials(cfg.Secrets.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("load store credentials: %w", err)
	}

	return &wiring{cfg: cfg, material: material, brokerCr: brokerCr, storeCr: storeCr}, nil
}

// newStore builds a MongoStore scoped to clientID's own log lines,
// connecting over mutual TLS with the same host material used for the
// broker connection (spec.md §6).
func (w *wiring) newStore(clientID string) storage.Store {
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d/%s",
		w.storeCr.User, w.storeCr.Passwd, w.cfg.Store.Host, w.cfg.Store.Port, w.storeCr.DB)

	s := storage.NewMongoStore(uri, w.storeCr.DB, clientID, w.material.ClientTLSConfig(w.cfg.Store.Host))
	s.SetLogger(log.WithClientID(clientID))
	return s
}

// newBrokerClient builds an unstarted broker.Client scoped to clientID.
func (w *wiring) newBrokerClient(clientID string) *broker.Client {
	url := fmt.Sprintf("amqps://%s:%s@%s:%d/%s",
		w.brokerCr.User, w.brokerCr.Passwd, w.cfg.Broker.Host, w.cfg.Broker.Port, w.brokerCr.Vhost)

	return broker.New(broker.Config{
		URL:       url,
		TLSConfig: w.material.ClientTLSConfig(w.cfg.Broker.Host),
		Exchange:  w.cfg.Broker.Exchange,
		Queue:     w.cfg.Broker.Queue,
		Logger:    log.WithClientID(clientID),
	})
}
