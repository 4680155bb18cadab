// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package gatehouse

import (
	"testing"
)

func TestPermissionSets(t *testing.T) {
	sysPerms := NewSystemPermissionSet(SystemCreateConnection)
	if !sysPerms.Has(SystemCreateConnection) {
		t.Error("expected CREATE_CONNECTION to be granted")
	}
	if sysPerms.Has(SystemAdminister) {
		t.Error("expected ADMINISTER to not be granted")
	}

	objPerms := NewObjectPermissionSet(map[string][]ObjectPermission{
		"1": {ObjectRead, ObjectUpdate},
		"2": {ObjectRead},
	})
	testCases := []struct {
		Perm     ObjectPermission
		ObjectID string
		Expected bool
	}{
		{ObjectRead, "1", true},
		{ObjectUpdate, "1", true},
		{ObjectDelete, "1", false},
		{ObjectRead, "2", true},
		{ObjectUpdate, "2", false},
		{ObjectRead, "3", false},
	}
	for _, tc := range testCases {
		if objPerms.Has(tc.Perm, tc.ObjectID) != tc.Expected {
			t.Errorf("Has(%s, %s): expected %t", tc.Perm, tc.ObjectID, tc.Expected)
		}
	}
}

func TestUnionObjectPermissionSet(t *testing.T) {
	declared := NewObjectPermissionSet(map[string][]ObjectPermission{
		"1": {ObjectRead},
	})
	derived := NewObjectPermissionSet(map[string][]ObjectPermission{
		"1": {ObjectUpdate},
		"2": {ObjectRead},
	})
	union := UnionObjectPermissionSet(declared, nil, derived)

	for _, tc := range []struct {
		Perm     ObjectPermission
		ObjectID string
		Expected bool
	}{
		{ObjectRead, "1", true},
		{ObjectUpdate, "1", true},
		{ObjectRead, "2", true},
		{ObjectDelete, "1", false},
		{ObjectRead, "3", false},
	} {
		if union.Has(tc.Perm, tc.ObjectID) != tc.Expected {
			t.Errorf("Has(%s, %s): expected %t", tc.Perm, tc.ObjectID, tc.Expected)
		}
	}
}
