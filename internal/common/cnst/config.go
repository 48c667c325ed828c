package cnst

// DefaultConfigFile is looked up in ./, ./configs and /etc/redsess when --conf is not given
const DefaultConfigFile = "redsess.yaml"
