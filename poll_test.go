package nx595e

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

const unchangedSeq = `<response><areas>7,3,0</areas><zones>5,1,1,9,1,1,1,1,1,1,1,1,1,1</zones></response>`

func TestPollNotAuthenticated(t *testing.T) {
	panel := newFakePanel(t)
	_, err := panel.client().Poll(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.Equal(t, 0, panel.totalHits())
}

func TestPollNothingChanged(t *testing.T) {
	panel := newFakePanel(t)
	cli := panel.client()
	ctx := context.Background()
	require.NoError(t, cli.Login(ctx))
	panel.reset()

	panel.seqXML = unchangedSeq
	result, err := cli.Poll(ctx)
	require.NoError(t, err)
	require.False(t, result.Changed())
	require.Equal(t, 1, panel.hitsFor(pathSequence))
	require.Equal(t, 0, panel.hitsFor(pathZoneState))
	require.Equal(t, 0, panel.hitsFor(pathAreaStatus))
	require.Equal(t, 1, panel.hitsFor(pathOutputStatus))
}

func TestPoll(t *testing.T) {
	panel := newFakePanel(t)
	cli := panel.client()
	ctx := context.Background()
	require.NoError(t, cli.Login(ctx))
	panel.reset()

	var stats [areaBankSize]int
	stats[0] = 1
	panel.seqXML = `<response><areas>8,3,0</areas><zones>6,1,1,9,1,1,1,1,1,1,1,1,1,1</zones></response>`
	panel.zoneXML["0"] = `<response><zstate>0</zstate><zdat>2</zdat></response>`
	panel.areaXML["0"] = areaStatusXML(stats, "")
	panel.outputsXML = `<response><o1>1</o1><o2>1</o2></response>`

	result, err := cli.Poll(ctx)
	require.NoError(t, err)
	require.True(t, result.Changed())
	require.Equal(t, []int{0, 1}, result.Zones)
	require.Equal(t, []int{0}, result.Areas)
	require.Equal(t, []int{0}, result.Outputs)

	require.Equal(t, 1, panel.hitsFor(pathZoneState))
	require.Equal(t, "0", panel.formsFor(pathZoneState)[0].Get("state"))
	require.Equal(t, 1, panel.hitsFor(pathAreaStatus))
	require.Equal(t, "0", panel.formsFor(pathAreaStatus)[0].Get("arsel"))

	home, _ := cli.Area(0)
	require.Equal(t, "Armed Away", home.Status)
	require.Equal(t, 4, home.Priority)
	require.Equal(t, 8, home.Sequence)
	require.True(t, cli.AreaArmed(0))

	front, _ := cli.Zone(0)
	require.Equal(t, "Ready", front.Status)
	require.Equal(t, 2, front.Sequence)
	kitchen, _ := cli.Zone(1)
	require.Equal(t, "Not Ready", kitchen.Status)
	require.Equal(t, 2, kitchen.Sequence)
	back, _ := cli.Zone(3)
	require.Equal(t, 1, back.Sequence)

	out, _ := cli.Output(0)
	require.True(t, out.On)

	t.Run("same sequence twice", func(t *testing.T) {
		panel.reset()
		result, err := cli.Poll(ctx)
		require.NoError(t, err)
		require.False(t, result.Changed())
		require.Equal(t, 0, panel.hitsFor(pathZoneState))
		require.Equal(t, 0, panel.hitsFor(pathAreaStatus))
	})

	t.Run("sequence moved, bits did not", func(t *testing.T) {
		panel.reset()
		panel.seqXML = `<response><areas>8,3,0</areas><zones>7,1,1,9,1,1,1,1,1,1,1,1,1,1</zones></response>`
		result, err := cli.Poll(ctx)
		require.NoError(t, err)
		require.Empty(t, result.Zones)
		require.Equal(t, 1, panel.hitsFor(pathZoneState))
		z, _ := cli.Zone(1)
		require.Equal(t, 2, z.Sequence)
	})
}

func TestPollSystemFaults(t *testing.T) {
	panel := newFakePanel(t)
	cli := panel.client()
	ctx := context.Background()
	require.NoError(t, cli.Login(ctx))

	var stats [areaBankSize]int
	stats[2] = 1
	panel.seqXML = `<response><areas>9,3,0</areas><zones>5,1,1,9,1,1,1,1,1,1,1,1,1,1</zones></response>`
	panel.areaXML["0"] = areaStatusXML(stats, "AC Failure")

	result, err := cli.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{0}, result.Areas)
	home, _ := cli.Area(0)
	require.Equal(t, "Ready", home.Status)
	require.Equal(t, 2, home.Priority)
}

func TestPollFailedFetchIsRetried(t *testing.T) {
	panel := newFakePanel(t)
	cli := panel.client()
	ctx := context.Background()
	require.NoError(t, cli.Login(ctx))
	panel.reset()

	panel.seqXML = `<response><areas>7,3,0</areas><zones>6,1,1,9,1,1,1,1,1,1,1,1,1,1</zones></response>`
	panel.handle(pathZoneState, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := cli.Poll(ctx)
	require.ErrorIs(t, err, ErrNetwork)
	require.True(t, cli.Authenticated(), "a failed poll keeps the session")

	panel.handle(pathZoneState, nil)
	panel.zoneXML["0"] = `<response><zstate>0</zstate><zdat>0</zdat></response>`
	result, err := cli.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{0}, result.Zones)
}

func TestPollBadResponse(t *testing.T) {
	panel := newFakePanel(t)
	cli := panel.client()
	ctx := context.Background()
	require.NoError(t, cli.Login(ctx))

	panel.seqXML = `<html>oops</html>`
	_, err := cli.Poll(ctx)
	require.ErrorIs(t, err, ErrParse)
}

func TestPollSessionExpired(t *testing.T) {
	panel := newFakePanel(t)
	cli := panel.client()
	ctx := context.Background()
	require.NoError(t, cli.Login(ctx))
	panel.reset()

	panel.seqXML = unchangedSeq
	panel.expire()
	_, err := cli.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, panel.hitsFor(pathLogin))
	require.Equal(t, 2, panel.hitsFor(pathSequence))
}
