package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/mrnag/internal/domain"
	"github.com/naka-gawa/mrnag/internal/formatter"
)

func TestRunner_Run(t *testing.T) {
	cfg := fooBarConfig(t)

	mrs := openMRs(2, domain.StateOpen)
	mrs = append(mrs, openMRs(1, domain.StateDraft)...)
	fetcher := new(mockFetcher)
	fetcher.On("FetchMergeRequests", mock.Anything, cfg.Projects()[0]).Return(mrs, nil)
	clients := new(mockClients)
	clients.On("New", mock.Anything, mock.Anything).Return(fetcher, nil)

	agg := NewAggregator(clients, envMap(map[string]string{"CORP_GITLAB_TOKEN": "x"}), nil, AggregatorOptions{})
	report, err := NewRunner(agg, nil).Run(context.Background(), cfg, []Filter{ExcludeDrafts()}, "json", formatter.Options{})
	require.NoError(t, err)

	assert.Equal(t, "application/json", report.ContentType)
	assert.Equal(t, 2, report.Result.MergeRequestCount())
	assert.Equal(t, ExitPartialFailure, ExitCode(report.Result, true))

	var doc formatter.Document
	require.NoError(t, json.Unmarshal(report.Payload, &doc))
	require.Len(t, doc.Projects, 2)
	assert.Len(t, doc.Projects[0].MergeRequests, 2)
	require.NotNil(t, doc.Projects[1].Error)
	assert.Equal(t, "auth_configuration", doc.Projects[1].Error.Kind)
}

func TestRunner_UnknownFormatFailsBeforeFetching(t *testing.T) {
	clients := new(mockClients)
	agg := NewAggregator(clients, envMap(nil), nil, AggregatorOptions{})

	_, err := NewRunner(agg, nil).Run(context.Background(), fooBarConfig(t), nil, "yaml", formatter.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	clients.AssertNotCalled(t, "New", mock.Anything, mock.Anything)
}
