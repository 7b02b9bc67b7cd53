// Package memcached implements metacache.Client on a memcached
// deployment, discovering servers from DNS SRV records.
package memcached

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/depotproject/depot/metacache"
)

const defaultExpiry = time.Hour

// Client is a memcache client that gets its server list from SRV
// records, and periodically updates that server list.
type Client struct {
	client     *memcache.Client
	serverList *memcache.ServerList
	hostname   string
	service    string
	logger     log.Logger
	expiry     time.Duration

	quit chan struct{}
	wait sync.WaitGroup
}

// Config defines how a Client should be constructed.
type Config struct {
	Host           string
	Service        string
	Timeout        time.Duration
	UpdateInterval time.Duration
	Expiry         time.Duration
	MaxIdleConns   int
	Logger         log.Logger
}

func New(config Config) *Client {
	var servers memcache.ServerList
	client := memcache.NewFromSelector(&servers)
	client.Timeout = config.Timeout
	client.MaxIdleConns = config.MaxIdleConns

	if config.Expiry == 0 {
		config.Expiry = defaultExpiry
	}

	c := &Client{
		client:     client,
		serverList: &servers,
		hostname:   config.Host,
		service:    config.Service,
		logger:     config.Logger,
		expiry:     config.Expiry,
		quit:       make(chan struct{}),
	}

	if err := c.updateServers(); err != nil {
		config.Logger.Log("err", errors.Wrapf(err, "setting memcache servers to %q", config.Host))
	}

	c.wait.Add(1)
	go c.updateLoop(config.UpdateInterval)
	return c
}

// NewFixedServers does not use DNS; it accepts a static list of
// servers.
func NewFixedServers(config Config, addresses ...string) *Client {
	var servers memcache.ServerList
	servers.SetServers(addresses...)
	client := memcache.NewFromSelector(&servers)
	client.Timeout = config.Timeout

	if config.Expiry == 0 {
		config.Expiry = defaultExpiry
	}

	return &Client{
		client:     client,
		serverList: &servers,
		hostname:   config.Host,
		service:    config.Service,
		logger:     config.Logger,
		expiry:     config.Expiry,
		quit:       make(chan struct{}),
	}
}

// The memcached client does not report the expiry when you GET a
// value, but we do want to know it, so that collaborators can refresh
// items that are soon to expire. For that reason, we prepend the
// expiry to the value when setting, and read it back when getting.

// GetKey gets the value and its expiry time from the cache.
func (c *Client) GetKey(k metacache.Keyer) ([]byte, time.Time, error) {
	item, err := c.client.Get(k.Key())
	if err != nil {
		if err == memcache.ErrCacheMiss {
			// Don't log on cache miss
			return nil, time.Time{}, metacache.ErrNotCached
		}
		c.logger.Log("err", errors.Wrap(err, "fetching from memcache"))
		return nil, time.Time{}, err
	}
	expiry := binary.BigEndian.Uint32(item.Value)
	return item.Value[4:], time.Unix(int64(expiry), 0), nil
}

// SetKey sets the value at a key.
func (c *Client) SetKey(k metacache.Keyer, v []byte) error {
	expiry := time.Now().Add(c.expiry).Unix()
	expiryBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(expiryBytes, uint32(expiry))
	if err := c.client.Set(&memcache.Item{
		Key:        k.Key(),
		Value:      append(expiryBytes, v...),
		Expiration: int32(expiry),
	}); err != nil {
		c.logger.Log("err", errors.Wrap(err, "storing in memcache"))
		return err
	}
	return nil
}

// DeleteKey invalidates a key. Deleting an absent key is not an error.
func (c *Client) DeleteKey(k metacache.Keyer) error {
	err := c.client.Delete(k.Key())
	if err == memcache.ErrCacheMiss {
		return nil
	}
	return err
}

// Stop the server list update loop.
func (c *Client) Stop() {
	close(c.quit)
	c.wait.Wait()
}

func (c *Client) updateLoop(interval time.Duration) {
	defer c.wait.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.updateServers(); err != nil {
				c.logger.Log("err", errors.Wrap(err, "updating memcache servers"))
			}
		case <-c.quit:
			return
		}
	}
}

func (c *Client) updateServers() error {
	_, addrs, err := net.LookupSRV(c.service, "tcp", c.hostname)
	if err != nil {
		return err
	}
	var servers []string
	for _, srv := range addrs {
		servers = append(servers, fmt.Sprintf("%s:%d", srv.Target, srv.Port))
	}
	// Sort the list so SetServers doesn't thrash the ring when DNS
	// returns them in a different order.
	sort.Strings(servers)
	return c.serverList.SetServers(servers...)
}
