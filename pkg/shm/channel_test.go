//go:build unix

/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ChannelTestSuite struct {
	suite.Suite
	ctx context.Context
	cfg Config
}

func (s *ChannelTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.cfg = Config{Name: "FFDDataMappingObject", Dir: s.T().TempDir(), Size: 64}
}

func (s *ChannelTestSuite) TestOpenMissingRegion() {
	c, err := Open(s.ctx, s.cfg)
	s.Require().Nil(c)
	s.Require().ErrorIs(err, ErrNotFound)
	s.Require().True(IsTransportError(err))
	s.Require().Contains(err.Error(), "FFDDataMappingObject")
}

func (s *ChannelTestSuite) TestOpenRejectsBadConfig() {
	_, err := Open(s.ctx, Config{Name: "a/b", Size: 64})
	s.Require().Error(err)
	_, err = Open(s.ctx, Config{Name: "ok", Size: DataOffset})
	s.Require().Error(err)
}

func (s *ChannelTestSuite) TestOpenTooSmallRegionIsMapFailure() {
	small := s.cfg
	small.Size = 16
	_, err := Create(s.ctx, small)
	s.Require().NoError(err)

	_, err = Open(s.ctx, s.cfg)
	s.Require().ErrorIs(err, ErrMapFailed)
	s.Require().NotErrorIs(err, ErrNotFound)
}

func (s *ChannelTestSuite) TestWriteRead() {
	c, err := Create(s.ctx, s.cfg)
	s.Require().NoError(err)

	s.Require().NoError(c.Write(s.ctx, []byte("raw record")))
	out := make([]byte, 10)
	n, err := c.Read(s.ctx, out)
	s.Require().NoError(err)
	s.Require().Equal(10, n)
	s.Require().Equal("raw record", string(out))

	s.Require().ErrorIs(c.Write(s.ctx, make([]byte, 65)), ErrPayloadTooLarge)
}

func (s *ChannelTestSuite) TestPublishConsumeDiscipline() {
	producer, err := Create(s.ctx, s.cfg)
	s.Require().NoError(err)
	consumer, err := Open(s.ctx, s.cfg)
	s.Require().NoError(err)

	_, err = consumer.Consume(s.ctx)
	s.Require().ErrorIs(err, ErrEmpty)

	s.Require().NoError(producer.Publish(s.ctx, []byte("first")))
	flag, err := consumer.Flag(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(FlagReady, flag)

	// the unconsumed record must survive a second publish
	s.Require().ErrorIs(producer.Publish(s.ctx, []byte("second")), ErrBusy)
	_, body, err := consumer.Peek(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal("first", string(body[:5]))

	body, err = consumer.Consume(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(body, producer.Capacity())
	s.Require().Equal("first", string(body[:5]))

	flag, err = producer.Flag(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(FlagEmpty, flag)
	_, err = consumer.Consume(s.ctx)
	s.Require().ErrorIs(err, ErrEmpty)

	s.Require().NoError(producer.Publish(s.ctx, []byte("second")))
	body, err = consumer.Consume(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal("second", string(body[:6]))
}

func (s *ChannelTestSuite) TestPublishTooLarge() {
	c, err := Create(s.ctx, s.cfg)
	s.Require().NoError(err)
	s.Require().ErrorIs(c.Publish(s.ctx, make([]byte, c.Capacity()+1)), ErrPayloadTooLarge)
	s.Require().NoError(c.Publish(s.ctx, make([]byte, c.Capacity())))
}

func (s *ChannelTestSuite) TestRemove() {
	c, err := Create(s.ctx, s.cfg)
	s.Require().NoError(err)
	s.Require().NoError(c.Remove())
	_, err = c.Flag(s.ctx)
	s.Require().ErrorIs(err, ErrNotFound)
	s.Require().ErrorIs(c.Remove(), ErrNotFound)
}

func TestChannelTestSuite(t *testing.T) {
	suite.Run(t, new(ChannelTestSuite))
}
