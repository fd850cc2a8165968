package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/lupa/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// TestNew
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"pattern syntax", errors.ErrCodePatternSyntax, "closing paren not found"},
		{"invalid param", errors.CodeInvalidParam, "text must not be empty"},
		{"builtin failure", errors.ErrCodeBuiltinFailure, "number recognizer failed"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.NotEmpty(t, ae.Stack)
		})
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	t.Parallel()

	ae := errors.Newf(errors.ErrCodeModelInvalid, "entity %q defined twice", "color")
	assert.Equal(t, `entity "color" defined twice`, ae.Message)
}

// ─────────────────────────────────────────────────────────────────────────────
// TestWrap
// ─────────────────────────────────────────────────────────────────────────────

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "should not matter"))
	assert.Nil(t, errors.Wrapf(nil, errors.CodeInternal, "should not %s", "matter"))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("dial tcp: connection refused")
	wrapped := errors.Wrap(root, errors.ErrCodeDatabaseError, "model lookup failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, errors.ErrCodeDatabaseError, wrapped.Code)
	assert.Equal(t, root, stderrors.Unwrap(wrapped))
	assert.True(t, stderrors.Is(wrapped, root))
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodePatternSyntax, "closing paren not found")
	outer := errors.Wrap(inner, errors.CodeUnknown, "compiling entity color")

	require.NotNil(t, outer)
	assert.Equal(t, errors.ErrCodePatternSyntax, outer.Code)
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodePatternSyntax, "closing paren not found")
	outer := errors.Wrap(inner, errors.ErrCodeModelInvalid, "model rejected")

	assert.Equal(t, errors.ErrCodeModelInvalid, outer.Code)
	assert.True(t, errors.IsCode(outer, errors.ErrCodePatternSyntax))
}

// ─────────────────────────────────────────────────────────────────────────────
// TestError_Method
// ─────────────────────────────────────────────────────────────────────────────

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodePatternSyntax, "closing paren not found").WithDetail("(red|blue")
	assert.Equal(t, "[LUPA_001] closing paren not found: (red|blue", ae.Error())

	wrapped := errors.Wrap(fmt.Errorf("boom"), errors.ErrCodeBuiltinFailure, "recognizer failed")
	assert.Equal(t, "[LUPA_003] recognizer failed: boom", wrapped.Error())
}

func TestWithDetail_SetsDetailOnCopy(t *testing.T) {
	t.Parallel()

	original := errors.New(errors.CodeNotFound, "model missing")
	detailed := original.WithDetail("name=pizza")

	assert.Empty(t, original.Detail)
	assert.Equal(t, "name=pizza", detailed.Detail)
	assert.Equal(t, original.Code, detailed.Code)

	var nilErr *errors.AppError
	assert.Nil(t, nilErr.WithDetail("x"))
	assert.Nil(t, nilErr.WithCause(stderrors.New("x")))
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain inspection
// ─────────────────────────────────────────────────────────────────────────────

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeModelNotFound,
		errors.GetCode(fmt.Errorf("ctx: %w", errors.New(errors.ErrCodeModelNotFound, "gone"))))
}

func TestIsNotFoundAndValidation(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeModelNotFound, "x")))
	assert.True(t, errors.IsNotFound(errors.NotFound("x")))
	assert.False(t, errors.IsNotFound(errors.Internal("x")))

	assert.True(t, errors.IsValidation(errors.New(errors.ErrCodePatternSyntax, "x")))
	assert.True(t, errors.IsValidation(errors.InvalidParam("x")))
	assert.False(t, errors.IsValidation(errors.New(errors.ErrCodeBuiltinFailure, "x")))
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusUnprocessableEntity, errors.HTTPStatus(errors.New(errors.ErrCodePatternSyntax, "x")))
	assert.Equal(t, http.StatusBadGateway, errors.HTTPStatus(errors.New(errors.ErrCodeBuiltinFailure, "x")))
	assert.Equal(t, http.StatusInternalServerError, errors.HTTPStatus(stderrors.New("x")))
}
