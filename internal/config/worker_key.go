package config

type WorkerKeyStruct struct {
	ProcessJobsQueue       string
	ProcessReferencesQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ProcessJobsQueue:       "process_jobs_queue",
	ProcessReferencesQueue: "process_references_queue",
}
