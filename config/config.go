// Package config assembles the immutable process configuration of dogbox from the environment and the access
// configuration document.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"dogbox.io/dogbox/access"
	cst "dogbox.io/dogbox/constants"
	pe "dogbox.io/dogbox/errors"
)

// NetworkAccess lists the networks which may skip authentication. Either list may be absent.
type NetworkAccess struct {
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`
}

// AccessDocument is the JSON access configuration file. Both network objects and accounts must be present;
// an absent one would otherwise read as "no restriction".
type AccessDocument struct {
	FallbackToRealIP       bool              `json:"fallbackToRealIp"`
	IPHeader               string            `json:"ipHeader,omitempty"`
	NoAuthDownloadNetworks *NetworkAccess    `json:"noAuthDownloadNetworks"`
	NoAuthUploadNetworks   *NetworkAccess    `json:"noAuthUploadNetworks"`
	Accounts               map[string]string `json:"accounts"`
}

// Config is built once at startup by FromEnv and LoadAccess, and never modified afterwards
type Config struct {
	Host                string
	Port                string
	StoragePath         string
	Retention           time.Duration
	UploadSizeMax       int64
	TemplatesDir        string
	StaticDir           string
	ShutdownGracePeriod time.Duration
	Verbose             bool
	AccessConfigPath    string
	// Download and Upload guard the read and write path respectively
	Download *access.Policy
	Upload   *access.Policy
}

// Addr is the address the server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// SetDefaults registers the default value of every setting on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(cst.EnvAppPort, "3000")
	v.SetDefault(cst.EnvAppHost, "")
	v.SetDefault(cst.EnvStoragePath, "/storage")
	v.SetDefault(cst.EnvRetentionTimeMillis, 60000)
	v.SetDefault(cst.EnvAccessConfigPath, "access-config.json")
	v.SetDefault(cst.EnvUploadSizeMaxByte, 0)
	v.SetDefault(cst.EnvTemplatesDir, "templates")
	v.SetDefault(cst.EnvStaticDir, "static")
	v.SetDefault(cst.EnvShutdownGracePeriod, 10*time.Second)
	v.SetDefault(cst.EnvVerbose, false)
}

// FromEnv reads the environment through v, falling back to defaults
func FromEnv(v *viper.Viper) (*Config, *pe.Err) {
	SetDefaults(v)
	v.AutomaticEnv()
	retention := v.GetInt64(cst.EnvRetentionTimeMillis)
	if retention <= 0 {
		return nil, pe.NewConfig(fmt.Sprintf("got non-positive retention time %q", v.GetString(cst.EnvRetentionTimeMillis)))
	}
	c := &Config{
		Host:                v.GetString(cst.EnvAppHost),
		Port:                v.GetString(cst.EnvAppPort),
		StoragePath:         v.GetString(cst.EnvStoragePath),
		Retention:           time.Duration(retention) * time.Millisecond,
		UploadSizeMax:       v.GetInt64(cst.EnvUploadSizeMaxByte),
		TemplatesDir:        v.GetString(cst.EnvTemplatesDir),
		StaticDir:           v.GetString(cst.EnvStaticDir),
		ShutdownGracePeriod: v.GetDuration(cst.EnvShutdownGracePeriod),
		Verbose:             v.GetBool(cst.EnvVerbose),
		AccessConfigPath:    v.GetString(cst.EnvAccessConfigPath),
	}
	if c.Port == "" {
		return nil, pe.NewConfig("empty listen port")
	}
	if c.StoragePath == "" {
		return nil, pe.NewConfig("empty storage path")
	}
	return c, nil
}

// LoadAccess builds the download and upload policies from the file at AccessConfigPath
func (c *Config) LoadAccess() *pe.Err {
	b, rerr := ioutil.ReadFile(c.AccessConfigPath)
	if rerr != nil {
		return pe.NewConfig(fmt.Sprintf("error reading access configuration %s", c.AccessConfigPath)).WithCause(rerr)
	}
	doc, err := ParseAccessDocument(bytes.NewReader(b))
	if err != nil {
		return err
	}
	c.Download, c.Upload, err = doc.Policies()
	return err
}

// ParseAccessDocument decodes the JSON access configuration
func ParseAccessDocument(r io.Reader) (*AccessDocument, *pe.Err) {
	var doc AccessDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, pe.NewConfig("malformed access configuration").WithCause(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, pe.NewConfig("trailing data after access configuration").WithCause(err)
	}
	return &doc, nil
}

// Policies builds the download and upload policies. Both share the account table and client address
// settings. Any invalid CIDR fails the whole document.
func (d *AccessDocument) Policies() (download, upload *access.Policy, err *pe.Err) {
	switch {
	case d.NoAuthDownloadNetworks == nil:
		return nil, nil, pe.NewConfig("missing noAuthDownloadNetworks in access configuration")
	case d.NoAuthUploadNetworks == nil:
		return nil, nil, pe.NewConfig("missing noAuthUploadNetworks in access configuration")
	case d.Accounts == nil:
		return nil, nil, pe.NewConfig("missing accounts in access configuration")
	}
	downloadRules, err := netRules("noAuthDownloadNetworks", *d.NoAuthDownloadNetworks)
	if err != nil {
		return nil, nil, err
	}
	uploadRules, err := netRules("noAuthUploadNetworks", *d.NoAuthUploadNetworks)
	if err != nil {
		return nil, nil, err
	}
	accounts := access.Accounts{}
	for user, hash := range d.Accounts {
		accounts[user] = hash
	}
	if d.IPHeader == "" && !d.FallbackToRealIP {
		log.Warn("neither ipHeader nor fallbackToRealIp is set; every request will be rejected")
	}
	newPolicy := func(name string, rules access.NetRules) *access.Policy {
		return &access.Policy{
			Name:             name,
			IPHeader:         d.IPHeader,
			FallbackToRealIP: d.FallbackToRealIP,
			Accounts:         accounts,
			Rules:            rules,
		}
	}
	return newPolicy("download", downloadRules), newPolicy("upload", uploadRules), nil
}

func netRules(field string, n NetworkAccess) (access.NetRules, *pe.Err) {
	allow, err := access.ParseRanges(n.Whitelist)
	if err != nil {
		return access.NetRules{}, pe.NewConfig(fmt.Sprintf("invalid %s.whitelist", field)).WithCause(err)
	}
	deny, err := access.ParseRanges(n.Blacklist)
	if err != nil {
		return access.NetRules{}, pe.NewConfig(fmt.Sprintf("invalid %s.blacklist", field)).WithCause(err)
	}
	return access.NetRules{Allow: allow, Deny: deny}, nil
}
