package testutil

// SlurmEnv returns the environment srun exports to task 5 of an 8-task,
// 3-node step on gpu[001-003].
func SlurmEnv() map[string]string {
	return map[string]string{
		"SLURM_STEP_ID":        "0",
		"SLURM_PROCID":         "5",
		"SLURM_LOCALID":        "1",
		"SLURM_NODEID":         "2",
		"SLURM_STEP_NUM_TASKS": "8",
		"SLURM_STEP_NUM_NODES": "3",
		"SLURM_TASKS_PER_NODE": "3(x2),2",
		"SLURM_CPUS_PER_TASK":  "10",
		"SLURM_STEP_GPUS":      "0,1",
		"SLURM_STEP_NODELIST":  "gpu[001-003]",
		"SLURM_JOB_ID":         "123456",
		"SLURMD_NODENAME":      "gpu003",
	}
}

// TorchElasticEnv returns the environment torchrun exports to worker 3 of
// an 8-process, 2-per-node run.
func TorchElasticEnv() map[string]string {
	return map[string]string{
		"TORCHELASTIC_RUN_ID": "job-1234",
		"RANK":                "3",
		"LOCAL_RANK":          "1",
		"WORLD_SIZE":          "8",
		"LOCAL_WORLD_SIZE":    "2",
		"GROUP_WORLD_SIZE":    "4",
		"MASTER_ADDR":         "10.0.0.1",
		"MASTER_PORT":         "29400",
	}
}

// OpenMPIEnv returns the environment mpirun exports to rank 7 of a
// 12-process, 4-per-node communicator.
func OpenMPIEnv() map[string]string {
	return map[string]string{
		"OMPI_COMM_WORLD_SIZE":       "12",
		"OMPI_COMM_WORLD_RANK":       "7",
		"OMPI_COMM_WORLD_LOCAL_RANK": "3",
		"OMPI_COMM_WORLD_LOCAL_SIZE": "4",
	}
}

// TorchInsideSlurmEnv returns the combined environment of torchrun
// launched inside an sbatch allocation, where both launchers detect.
func TorchInsideSlurmEnv() map[string]string {
	merged := SlurmEnv()
	for key, value := range TorchElasticEnv() {
		merged[key] = value
	}
	return merged
}
