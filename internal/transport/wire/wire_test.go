package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_BatchTaskRequest(t *testing.T) {
	raw := `{"type":"batch_task_request","tasks":[{"task_id":"T1","workstation_id":50,"items":["A","B"]}]}`

	req, err := Decode([]byte(raw))
	require.NoError(t, err)

	batch, ok := req.(*BatchTaskRequest)
	require.True(t, ok, "decoded %T", req)
	require.Len(t, batch.Tasks, 1)
	assert.Equal(t, "T1", batch.Tasks[0].TaskID)
	assert.Equal(t, 50, batch.Tasks[0].WorkstationID)
	assert.Equal(t, []string{"A", "B"}, batch.Tasks[0].Items)
}

func TestDecode_RobotStatusOptionalFields(t *testing.T) {
	req, err := Decode([]byte(`{"type":"robot_status","rid":1}`))
	require.NoError(t, err)
	st := req.(*RobotStatus)
	assert.Nil(t, st.CurrentNode)
	assert.Nil(t, st.Status)

	req, err = Decode([]byte(`{"type":"robot_status","rid":1,"current_node":7,"status":"IDLE"}`))
	require.NoError(t, err)
	st = req.(*RobotStatus)
	require.NotNil(t, st.CurrentNode)
	require.NotNil(t, st.Status)
	assert.Equal(t, 7, *st.CurrentNode)
	assert.Equal(t, "IDLE", *st.Status)
}

func TestDecode_EveryType(t *testing.T) {
	cases := map[string]any{
		`{"type":"task_request","worker_id":3,"worker_marker":50,"shelf_marker":9}`: &TaskRequest{},
		`{"type":"pick_complete","task_id":"T1","item":"A","workstation_id":50}`:    &PickComplete{},
		`{"type":"robot_arrived","rid":1,"node":9}`:                                 &RobotArrived{},
		`{"type":"status_request"}`:                                                 &StatusRequest{},
		`{"type":"task_status_request"}`:                                            &TaskStatusRequest{},
		`{"type":"shelf_status_request"}`:                                           &ShelfStatusRequest{},
	}
	for raw, want := range cases {
		req, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.IsType(t, want, req, raw)
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))
	assert.True(t, errors.Is(err, ErrUnknownType), "err = %v", err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
