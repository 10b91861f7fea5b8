package registry

import "time"

// Statistics is the snapshot served to the admin surface. JSON tags
// match the ops API payload.
type Statistics struct {
	TotalMounts int          `json:"total_mounts"`
	TotalUsers  int          `json:"total_users"`
	Mounts      []MountStats `json:"mounts"`
	Users       []UserStats  `json:"users"`
}

type MountStats struct {
	Name            string    `json:"mount_name"`
	PeerAddr        string    `json:"peer_addr"`
	Version         string    `json:"protocol_version"`
	ConnectTime     time.Time `json:"connect_time"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	TotalBytes      int64     `json:"total_bytes"`
	DataRateBPS     float64   `json:"data_rate_bps"`
	SubscriberCount int       `json:"subscriber_count"`
	STRGenerated    bool      `json:"str_generated"`
}

type UserStats struct {
	Username     string    `json:"username"`
	Mount        string    `json:"mount_name"`
	PeerAddr     string    `json:"peer_addr"`
	Version      string    `json:"protocol_version"`
	ConnectTime  time.Time `json:"connect_time"`
	LastActivity time.Time `json:"last_activity"`
	BytesSent    int64     `json:"bytes_sent"`
}

// GetStatistics assembles a consistent-enough snapshot. The two locks
// are taken one after the other, never together.
func (r *Registry) GetStatistics() Statistics {
	var stats Statistics

	r.mountLock.RLock()
	mounts := make([]*MountInfo, 0, len(r.mounts))
	for _, m := range r.mounts {
		mounts = append(mounts, m)
	}
	for _, m := range mounts {
		stats.Mounts = append(stats.Mounts, MountStats{
			Name:          m.Name,
			PeerAddr:      m.PeerAddr,
			Version:       m.Version.String(),
			ConnectTime:   m.ConnectTime,
			UptimeSeconds: m.Uptime().Seconds(),
			TotalBytes:    m.TotalBytes,
			DataRateBPS:   m.DataRateBPS,
			STRGenerated:  m.FinalGenerated,
		})
	}
	stats.TotalMounts = len(mounts)
	r.mountLock.RUnlock()

	r.userLock.RLock()
	for _, conns := range r.users {
		for _, c := range conns {
			stats.Users = append(stats.Users, UserStats{
				Username:     c.Username,
				Mount:        c.Mount,
				PeerAddr:     c.PeerAddr,
				Version:      c.Version.String(),
				ConnectTime:  c.ConnectTime,
				LastActivity: c.LastActivity,
				BytesSent:    c.BytesSent,
			})
			stats.TotalUsers++
		}
	}
	for i := range stats.Mounts {
		stats.Mounts[i].SubscriberCount = r.mountConnCount[stats.Mounts[i].Name]
	}
	r.userLock.RUnlock()

	return stats
}
