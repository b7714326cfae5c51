package auth_test

import (
	"github.com/quillnotes/quill/internal/auth/authtest"
)

type fakeAccountRepo = authtest.AccountStore

type fakeAPIKeyRepo = authtest.APIKeyStore

func newFakeAccountRepo() *fakeAccountRepo {
	return authtest.NewAccountStore()
}

func newFakeAPIKeyRepo() *fakeAPIKeyRepo {
	return authtest.NewAPIKeyStore()
}
