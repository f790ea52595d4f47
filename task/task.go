package task

import (
	"runtime"

	"github.com/getsentry/sentry-go"
	logger "github.com/sirupsen/logrus"
)

// Task is a named worker running on its own OS thread.
type Task struct {
	name string
	done chan struct{}
}

// Spawn starts body as a new task.
func Spawn(name string, body func()) *Task {
	t := &Task{
		name: name,
		done: make(chan struct{}),
	}
	go t.run(body)
	return t
}

func (t *Task) run(body func()) {
	// each task owns its thread for its whole life
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logger.Fields{
				"task":  t.name,
				"panic": r,
			}).Error("task panicked")
			sentry.CurrentHub().Recover(r)
		}
	}()

	logger.WithField("task", t.name).Debug("task started")
	body()
	logger.WithField("task", t.name).Debug("task exited")
}

// Name gets the name of the task.
func (t *Task) Name() string {
	return t.name
}

// Done is closed when the task body returns.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task body returns.
func (t *Task) Wait() {
	<-t.done
}

// InputTask is a task that receives messages through a message box.
type InputTask[M any] struct {
	*Task
	box MessageBox[M]
}

// SpawnWithInput starts body as a new task. Body owns the receiving end of an
// unbounded channel; the sending end is available from MessageBox. The
// channel is closed once Close was called and every earlier message was
// received, so ranging over it terminates.
func SpawnWithInput[M any](name string, body func(<-chan M)) *InputTask[M] {
	mb := newMailbox[M](name)
	return &InputTask[M]{
		Task: Spawn(name, func() { body(mb.out) }),
		box:  MessageBox[M]{mailbox: mb},
	}
}

// MessageBox gets a handle other tasks can use to send to this task.
func (t *InputTask[M]) MessageBox() MessageBox[M] {
	return t.box
}

// Close stops the task once the messages already sent are handled.
func (t *InputTask[M]) Close() {
	t.box.mailbox.close()
}
