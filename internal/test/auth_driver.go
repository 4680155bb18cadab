// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sapcc/go-api-declarations/cadf"
	"github.com/sapcc/go-bits/audittools"

	"github.com/sapcc/gatehouse/internal/gatehouse"
)

// AuthDriver (driver ID "unittest") is a gatehouse.AuthDriver for unit tests.
// It accepts exactly one username/password pair and declares the configured
// grants for that user.
type AuthDriver struct {
	ExpectedUserName string
	ExpectedPassword string
	// grants declared for the expected user
	SystemPermissions     []gatehouse.SystemPermission
	ConnectionPermissions map[string][]gatehouse.ObjectPermission
}

func init() {
	gatehouse.AuthDriverRegistry.Add(func() gatehouse.AuthDriver { return &AuthDriver{} })
}

// PluginTypeID implements the gatehouse.AuthDriver interface.
func (d *AuthDriver) PluginTypeID() string {
	return "unittest"
}

// Init implements the gatehouse.AuthDriver interface.
func (d *AuthDriver) Init(providerID string, rc *redis.Client) error {
	return nil
}

// AuthenticateUser implements the gatehouse.AuthDriver interface.
func (d *AuthDriver) AuthenticateUser(ctx context.Context, userName, password string) (gatehouse.UserIdentity, *gatehouse.APIError) {
	is := func(a, b string) bool {
		return a != "" && a == b
	}
	if is(userName, d.ExpectedUserName) && is(password, d.ExpectedPassword) {
		return d.UserIdentity(), nil
	}
	return nil, gatehouse.ErrUnauthenticated.With("wrong credentials")
}

// UserIdentity returns the identity that AuthenticateUser hands out on
// success. Tests use this to assemble sessions without going through the
// tokens API.
func (d *AuthDriver) UserIdentity() gatehouse.UserIdentity {
	return &userIdentity{
		Username:   d.ExpectedUserName,
		SysPerms:   gatehouse.NewSystemPermissionSet(d.SystemPermissions...),
		ConnGrants: gatehouse.NewObjectPermissionSet(d.ConnectionPermissions),
	}
}

type userIdentity struct {
	Username   string
	SysPerms   gatehouse.SystemPermissionSet
	ConnGrants gatehouse.ObjectPermissionSet
}

func (uid *userIdentity) UserName() string {
	return uid.Username
}

func (uid *userIdentity) SystemPermissions() gatehouse.SystemPermissionSet {
	return uid.SysPerms
}

func (uid *userIdentity) ConnectionGrants() gatehouse.ObjectPermissionSet {
	return uid.ConnGrants
}

func (uid *userIdentity) UserInfo() audittools.UserInfo {
	// return a dummy UserInfo to enable testing of audit events (a nil UserInfo
	// will suppress audit event generation)
	return dummyUserInfo{}
}

type dummyUserInfo struct{}

func (dummyUserInfo) AsInitiator(_ cadf.Host) cadf.Resource {
	return cadf.Resource{}
}
