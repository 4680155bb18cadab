// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package static contains an AuthDriver for deployments that manage their
// users in a configuration file instead of an external identity provider.
package static

import (
	"context"
	"crypto/subtle"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/audittools"
	"github.com/sapcc/go-bits/osext"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/sapcc/gatehouse/internal/gatehouse"
)

type userConfig struct {
	Name string `yaml:"name"`
	// exactly one of Password and PasswordHash must be set
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
	// values from gatehouse.SystemPermission
	SystemPermissions []string `yaml:"system_permissions"`
	// connection ID -> values from gatehouse.ObjectPermission
	ConnectionPermissions map[string][]string `yaml:"connection_permissions"`
}

type providerConfig struct {
	Users []userConfig `yaml:"users"`
}

// Driver (driver ID "static") is a gatehouse.AuthDriver that reads its user
// database from the YAML file at $GATEHOUSE_AUTH_STATIC_USERS_PATH. The file
// contains one section per provider scope:
//
//	provider-id:
//	  users:
//	    - name: alice
//	      password_hash: $2a$10$...
//	      system_permissions: [ CREATE_CONNECTION ]
//	      connection_permissions:
//	        "42": [ READ, UPDATE ]
type Driver struct {
	providerID string
	users      map[string]userConfig
}

func init() {
	gatehouse.AuthDriverRegistry.Add(func() gatehouse.AuthDriver { return &Driver{} })
}

// PluginTypeID implements the gatehouse.AuthDriver interface.
func (d *Driver) PluginTypeID() string { return "static" }

// Init implements the gatehouse.AuthDriver interface.
func (d *Driver) Init(providerID string, rc *redis.Client) error {
	path, err := osext.NeedGetenv("GATEHOUSE_AUTH_STATIC_USERS_PATH")
	if err != nil {
		return err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cfg map[string]providerConfig
	err = yaml.Unmarshal(buf, &cfg)
	if err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}

	d.providerID = providerID
	d.users = make(map[string]userConfig)
	for _, user := range cfg[providerID].Users {
		if user.Name == "" {
			return fmt.Errorf("in %s: user without name in provider %q", path, providerID)
		}
		if (user.Password == "") == (user.PasswordHash == "") {
			return fmt.Errorf("in %s: user %q must have exactly one of password and password_hash", path, user.Name)
		}
		if _, exists := d.users[user.Name]; exists {
			return fmt.Errorf("in %s: duplicate user %q in provider %q", path, user.Name, providerID)
		}
		d.users[user.Name] = user
	}
	return nil
}

// AuthenticateUser implements the gatehouse.AuthDriver interface.
func (d *Driver) AuthenticateUser(ctx context.Context, userName, password string) (gatehouse.UserIdentity, *gatehouse.APIError) {
	user, exists := d.users[userName]
	if !exists || !checkPassword(user, password) {
		// same message for unknown user and wrong password
		return nil, gatehouse.ErrUnauthenticated.With("invalid username or password")
	}

	sysPerms := make([]gatehouse.SystemPermission, len(user.SystemPermissions))
	for idx, perm := range user.SystemPermissions {
		sysPerms[idx] = gatehouse.SystemPermission(perm)
	}
	grants := make(map[string][]gatehouse.ObjectPermission, len(user.ConnectionPermissions))
	for connectionID, perms := range user.ConnectionPermissions {
		for _, perm := range perms {
			grants[connectionID] = append(grants[connectionID], gatehouse.ObjectPermission(perm))
		}
	}

	return userIdentity{
		userName:   userName,
		sysPerms:   gatehouse.NewSystemPermissionSet(sysPerms...),
		connGrants: gatehouse.NewObjectPermissionSet(grants),
		providerID: d.providerID,
	}, nil
}

func checkPassword(user userConfig, password string) bool {
	if user.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) == 1
}

type userIdentity struct {
	userName   string
	sysPerms   gatehouse.SystemPermissionSet
	connGrants gatehouse.ObjectPermissionSet
	providerID string
}

// UserName implements the gatehouse.UserIdentity interface.
func (uid userIdentity) UserName() string { return uid.userName }

// SystemPermissions implements the gatehouse.UserIdentity interface.
func (uid userIdentity) SystemPermissions() gatehouse.SystemPermissionSet { return uid.sysPerms }

// ConnectionGrants implements the gatehouse.UserIdentity interface.
func (uid userIdentity) ConnectionGrants() gatehouse.ObjectPermissionSet { return uid.connGrants }

// UserInfo implements the gatehouse.UserIdentity interface.
func (uid userIdentity) UserInfo() audittools.UserInfo {
	return staticUserInfo{userName: uid.userName, providerID: uid.providerID}
}

type staticUserInfo struct {
	userName   string
	providerID string
}

// AsInitiator implements the audittools.UserInfo interface.
func (u staticUserInfo) AsInitiator(host cadf.Host) cadf.Resource {
	return cadf.Resource{
		TypeURI: "remote-access/user",
		Name:    u.userName,
		Domain:  u.providerID,
		ID:      u.providerID + "/" + u.userName,
		Host:    &host,
	}
}
