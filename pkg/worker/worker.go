package worker

import "github.com/mediabrowse/mediabrowse/pkg/logger"

var log = logger.Get("Worker")

type (
	WakeupChannel chan int
	WorkerStatus  int

	// Task is the unit of work executed by a worker. The boolean
	// return reports whether any work was actually performed; a
	// worker that performed no work goes back to sleep until woken.
	Task func(Worker) (bool, error)

	Worker interface {
		Start()
		Status() WorkerStatus
		WakeupChan() WakeupChannel
		Label() string
		Close()
	}
)

const (
	SLEEPING WorkerStatus = iota
	WORKING
	FINISHED
)

type taskWorker struct {
	label         string
	task          Task
	wakeupChan    WakeupChannel
	currentStatus WorkerStatus
}

func NewWorker(label string, task Task) *taskWorker {
	return &taskWorker{
		label:         label,
		task:          task,
		wakeupChan:    make(WakeupChannel),
		currentStatus: SLEEPING,
	}
}

// Start runs the worker loop: drain available work, then sleep until
// woken. The loop exits when the wakeup channel is closed, or if the
// task reports an error.
func (worker *taskWorker) Start() {
	log.Debugf("Worker %s starting\n", worker.label)

	for {
		worker.currentStatus = WORKING
		for {
			didWork, err := worker.task(worker)
			if err != nil {
				log.Errorf("Worker %s task reported error (%T): %v\n", worker.label, err, err)
				worker.currentStatus = FINISHED
				return
			}

			if !didWork {
				break
			}
		}

		if !worker.sleep() {
			log.Debugf("Worker %s wakeup channel closed, exiting\n", worker.label)
			worker.currentStatus = FINISHED
			return
		}
	}
}

func (worker *taskWorker) Status() WorkerStatus      { return worker.currentStatus }
func (worker *taskWorker) WakeupChan() WakeupChannel { return worker.wakeupChan }
func (worker *taskWorker) Label() string             { return worker.label }

// Close closes the wakeup channel, which causes the worker loop to
// exit once it next sleeps. An in-flight task is not interrupted.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// sleep blocks until the wakeup channel is signalled. The return is
// false if the channel was closed, indicating the worker should quit.
func (worker *taskWorker) sleep() (isAlive bool) {
	worker.currentStatus = SLEEPING

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.currentStatus = WORKING
	}

	return isAlive
}
