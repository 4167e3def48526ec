package repository

var EnqueueError = enqueueError
