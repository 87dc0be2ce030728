// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package opslog delivers relay error reports to operator channels.
package opslog

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/relaybot/pkg/relay"
)

// Mattermost posts reports into a Mattermost channel.
type Mattermost struct {
	client    *model.Client4
	channelID string
}

var _ relay.OpsReporter = (*Mattermost)(nil)

// NewMattermost builds a reporter authenticated with a bot token.
func NewMattermost(serverURL, token, channelID string) *Mattermost {
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)
	return &Mattermost{client: client, channelID: channelID}
}

// Check verifies the token by fetching the bot's own user.
func (m *Mattermost) Check(ctx context.Context) (string, error) {
	me, _, err := m.client.GetMe(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to authenticate ops reporter: %w", err)
	}
	return me.Username, nil
}

func (m *Mattermost) Report(ctx context.Context, text string) error {
	_, _, err := m.client.CreatePost(ctx, &model.Post{
		ChannelId: m.channelID,
		Message:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to post report: %w", err)
	}
	return nil
}

// Log writes reports to a zerolog logger.
type Log struct {
	Logger zerolog.Logger
}

var _ relay.OpsReporter = Log{}

func (l Log) Report(_ context.Context, text string) error {
	l.Logger.Warn().Str("report", text).Msg("Ops report")
	return nil
}

// Multi sends every report to all reporters. A failing reporter does not
// stop the others.
type Multi []relay.OpsReporter

var _ relay.OpsReporter = Multi(nil)

func (m Multi) Report(ctx context.Context, text string) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
